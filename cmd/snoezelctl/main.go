// Command snoezelctl controls a running Snoezelen engine over its remote
// channel.
//
//	snoezelctl get
//	snoezelctl set effect '"snow"'
//	snoezelctl record start -memo "morning group" -video
//	snoezelctl record stop
//	snoezelctl record save -memo "morning group"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ayusman/snoezelen/internal/remote"
)

var (
	serverURL string
	timeout   time.Duration
)

func init() {
	flag.StringVar(&serverURL, "server", getEnvOrDefault("SNOEZELEN_REMOTE", "ws://localhost:8080/api/remote"), "Remote channel URL")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the engine")
	flag.Usage = usage
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: snoezelctl [flags] <command>

Commands:
  get                          print the current settings
  set <key> <value>            change one setting; value is JSON, bare words are strings
  record start [-memo m] [-video]
  record stop
  record save [-memo m]

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := remote.Dial(ctx, serverURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	switch args[0] {
	case "get":
		err = getSettings(ctx, c)
	case "set":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		err = setSetting(ctx, c, args[1], args[2])
	case "record":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = record(ctx, c, args[1], args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func getSettings(ctx context.Context, c *remote.Client) error {
	reply, err := c.Request(ctx, remote.Message{Type: remote.TypeSettingsRequest}, remote.TypeSettingsResponse)
	if err != nil {
		return err
	}
	return printJSON(reply.Payload)
}

func setSetting(ctx context.Context, c *remote.Client, key, value string) error {
	m, err := remote.NewMessage(remote.TypeSettingUpdate, remote.SettingUpdate{Key: key, Value: parseValue(value)})
	if err != nil {
		return err
	}
	reply, err := c.Request(ctx, m, remote.TypeSettingsResponse)
	if err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := reply.Decode(&fields); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, fields[key])
	return nil
}

// parseValue returns value as JSON; text that is not JSON becomes a string.
func parseValue(value string) json.RawMessage {
	if json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}
	raw, _ := json.Marshal(value)
	return raw
}

func record(ctx context.Context, c *remote.Client, action string, args []string) error {
	fs := flag.NewFlagSet("record "+action, flag.ExitOnError)
	memo := fs.String("memo", "", "Session memo")
	video := fs.Bool("video", false, "Also record the projector output")
	fs.Parse(args)

	switch action {
	case "start":
		m, err := remote.NewMessage(remote.TypeRecordingStart, remote.RecordingStart{Memo: *memo, Video: *video})
		if err != nil {
			return err
		}
		return sendAndCheck(c, m)

	case "stop":
		return sendAndCheck(c, remote.Message{Type: remote.TypeRecordingStop})

	case "save":
		m, err := remote.NewMessage(remote.TypeRecordingSave, remote.RecordingSave{Memo: strings.TrimSpace(*memo)})
		if err != nil {
			return err
		}
		reply, err := c.Request(ctx, m, remote.TypeRecordingSaved)
		if err != nil {
			return err
		}
		var saved remote.RecordingSaved
		if err := reply.Decode(&saved); err != nil {
			return err
		}
		if saved.Warning != "" {
			fmt.Println("Warning:", saved.Warning)
			return nil
		}
		fmt.Printf("Saved %s (%d samples)\n", saved.ID, saved.Samples)
		return nil
	}
	return fmt.Errorf("unknown action %q", action)
}

// sendAndCheck sends a message without a reply type and reports an error
// message that arrives shortly after.
func sendAndCheck(c *remote.Client, m remote.Message) error {
	if err := c.Send(m); err != nil {
		return err
	}
	wait, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	for {
		select {
		case <-wait.Done():
			fmt.Println("OK")
			return nil
		case reply, ok := <-c.Messages():
			if !ok {
				return remote.ErrClosed
			}
			if reply.Type == remote.TypeError {
				var p remote.ErrorPayload
				if err := reply.Decode(&p); err != nil {
					return err
				}
				return fmt.Errorf("%s", p.Message)
			}
		}
	}
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
