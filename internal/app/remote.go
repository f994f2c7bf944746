package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayusman/snoezelen/internal/recording"
	"github.com/ayusman/snoezelen/internal/remote"
	"github.com/ayusman/snoezelen/internal/settings"
)

// SaveResult reports the outcome of SaveRecording.
type SaveResult struct {
	ID      string
	Samples int
	// Path of the JSON export; empty when ExportDir is unset.
	Path string
	// Warning is set when nothing was saved.
	Warning string
	// Archived lists the object keys uploaded to the archive.
	Archived []string
}

const archiveTimeout = 30 * time.Second

// UpdateSetting applies one key to the live settings, persists it and
// tells remote controllers the new configuration.
func (e *Engine) UpdateSetting(key string, value json.RawMessage) (settings.Settings, error) {
	return e.UpdateSettings(map[string]json.RawMessage{key: value})
}

// UpdateSettings applies values as one change: the frame loop and remote
// controllers see a single new snapshot, or nothing when any key fails.
func (e *Engine) UpdateSettings(values map[string]json.RawMessage) (settings.Settings, error) {
	s, err := e.holder.Update(func(cur settings.Settings) (settings.Settings, error) {
		return cur.ApplyAll(values)
	})
	if err != nil {
		return s, err
	}

	if e.cfg.Store != nil {
		if err := e.persist(s, values); err != nil {
			log.Printf("Error saving settings: %v", err)
		}
	}

	e.publishSnapshot(s)
	return s, nil
}

// persist stores the normalised value of every key in values.
func (e *Engine) persist(s settings.Settings, values map[string]json.RawMessage) error {
	fields, err := s.Fields()
	if err != nil {
		return err
	}
	changed := make(map[string]json.RawMessage, len(values))
	for k := range values {
		changed[k] = fields[k]
	}
	return e.cfg.Store.Settings().SetAll(changed)
}

// StartRecording begins a keypoint session. With video set and an export
// directory configured, the composited output is recorded as well.
func (e *Engine) StartRecording(memo string, video bool) (string, error) {
	s := e.holder.Load()
	now := e.cfg.Now()
	id, err := e.recorder.Start(recording.KindFor(s.Detector), memo, now)
	if err != nil {
		return "", err
	}
	log.Printf("Recording %s started", id)

	if video && e.cfg.ExportDir != "" {
		path := filepath.Join(e.cfg.ExportDir, "snoezelen-"+id+".avi")
		if err := e.video.Start(path, float64(e.cfg.ActiveFPS), s.CanvasWidth, s.CanvasHeight, now); err != nil {
			log.Printf("Error starting video recording: %v", err)
		}
	}
	return id, nil
}

// StopRecording ends the active session. It is kept until SaveRecording or
// the next StopRecording.
func (e *Engine) StopRecording() (recording.Session, error) {
	sess, err := e.recorder.Stop()
	if err != nil {
		return sess, err
	}

	var video string
	if e.video.Active() {
		if path, frames, err := e.video.Stop(); err != nil {
			log.Printf("Error closing video %s: %v", path, err)
		} else {
			log.Printf("Saved %d frames to %s", frames, path)
			video = path
		}
	}

	e.mu.Lock()
	e.lastSession = &sess
	e.lastVideo = video
	e.mu.Unlock()

	log.Printf("Recording %s stopped with %d samples", sess.ID, len(sess.Samples))
	return sess, nil
}

// SaveRecording exports and then persists the last stopped session,
// stopping the active one first. A non-empty memo replaces the session's
// memo. An empty session is discarded with a warning and ErrEmptyRecording.
// When either step fails the session is kept and the save can be retried.
func (e *Engine) SaveRecording(memo string) (SaveResult, error) {
	if e.recorder.Active() {
		if _, err := e.StopRecording(); err != nil {
			return SaveResult{}, err
		}
	}

	e.mu.Lock()
	last, video := e.lastSession, e.lastVideo
	e.lastSession, e.lastVideo = nil, ""
	e.mu.Unlock()
	if last == nil {
		return SaveResult{}, recording.ErrNotRecording
	}

	sess := *last
	if memo != "" {
		sess.Memo = memo
	}
	res := SaveResult{ID: sess.ID, Samples: len(sess.Samples)}
	if len(sess.Samples) == 0 {
		res.Warning = "no data recorded"
		return res, recording.ErrEmptyRecording
	}

	if e.cfg.ExportDir != "" {
		path := filepath.Join(e.cfg.ExportDir, recording.Filename(sess))
		if err := exportFile(path, sess); err != nil {
			e.keepForRetry(last, video)
			return res, err
		}
		res.Path = path
	}

	if e.cfg.Store != nil {
		if _, err := e.cfg.Store.Sessions().Create(sess); err != nil {
			if res.Path != "" {
				os.Remove(res.Path)
			}
			e.keepForRetry(last, video)
			return SaveResult{ID: res.ID, Samples: res.Samples}, fmt.Errorf("save session: %w", err)
		}
	}

	if e.cfg.Archive != nil {
		res.Archived = e.archive(sess, video)
	}

	log.Printf("Recording %s saved (%d samples)", sess.ID, res.Samples)
	return res, nil
}

// archive uploads the JSON export and the output video, if any. Upload
// failures are logged; the local copy stays authoritative.
func (e *Engine) archive(sess recording.Session, video string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	var keys []string
	var buf bytes.Buffer
	if err := recording.Export(&buf, sess); err != nil {
		log.Printf("Error encoding recording %s for archive: %v", sess.ID, err)
	} else if key, err := e.cfg.Archive.Put(ctx, recording.Filename(sess), &buf, int64(buf.Len())); err != nil {
		log.Printf("Error archiving recording %s: %v", sess.ID, err)
	} else {
		keys = append(keys, key)
	}

	if video != "" {
		if key, err := e.cfg.Archive.PutFile(ctx, video); err != nil {
			log.Printf("Error archiving video %s: %v", video, err)
		} else {
			keys = append(keys, key)
		}
	}
	return keys
}

// keepForRetry puts a session whose save failed back, unless a newer one
// was stopped in the meantime.
func (e *Engine) keepForRetry(sess *recording.Session, video string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastSession == nil {
		e.lastSession, e.lastVideo = sess, video
	}
}

func exportFile(path string, sess recording.Session) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := recording.Export(f, sess); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("export session: %w", err)
	}
	return f.Close()
}

// HandleMessage executes a message from a remote controller. Failures are
// reported back as error messages.
func (e *Engine) HandleMessage(m remote.Message) {
	if err := e.handle(m); err != nil {
		log.Printf("Error handling %s: %v", m.Type, err)
		e.publish(remote.TypeError, remote.ErrorPayload{Message: err.Error()})
	}
}

func (e *Engine) handle(m remote.Message) error {
	switch m.Type {
	case remote.TypeSettingsRequest:
		e.publishSettings()

	case remote.TypeSettingUpdate:
		var u remote.SettingUpdate
		if err := m.Decode(&u); err != nil {
			return err
		}
		if _, err := e.UpdateSetting(u.Key, u.Value); err != nil {
			return err
		}

	case remote.TypeRecordingStart:
		var p remote.RecordingStart
		if len(m.Payload) > 0 {
			if err := m.Decode(&p); err != nil {
				return err
			}
		}
		if _, err := e.StartRecording(p.Memo, p.Video); err != nil {
			return err
		}

	case remote.TypeRecordingStop:
		if _, err := e.StopRecording(); err != nil {
			return err
		}

	case remote.TypeRecordingSave:
		var p remote.RecordingSave
		if len(m.Payload) > 0 {
			if err := m.Decode(&p); err != nil {
				return err
			}
		}
		res, err := e.SaveRecording(strings.TrimSpace(p.Memo))
		if err != nil && !errors.Is(err, recording.ErrEmptyRecording) {
			return err
		}
		e.publish(remote.TypeRecordingSaved, remote.RecordingSaved{
			ID:       res.ID,
			Samples:  res.Samples,
			Warning:  res.Warning,
			Archived: res.Archived,
		})

	case remote.TypeSettingsResponse, remote.TypeRecordingSaved, remote.TypeError:
		// sent by another engine or echoed by a controller

	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func (e *Engine) publishSettings() {
	e.publishSnapshot(e.holder.Load())
}

func (e *Engine) publishSnapshot(s settings.Settings) {
	fields, err := s.Fields()
	if err != nil {
		log.Printf("Error encoding settings: %v", err)
		return
	}
	e.publish(remote.TypeSettingsResponse, fields)
}

func (e *Engine) publish(typ string, payload any) {
	if e.cfg.Hub == nil {
		return
	}
	m, err := remote.NewMessage(typ, payload)
	if err != nil {
		log.Printf("Error encoding %s: %v", typ, err)
		return
	}
	e.cfg.Hub.Publish(m)
}
