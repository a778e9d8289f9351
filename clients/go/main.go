// immonow-comms CLI - command line client for the team communications API
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ilyrer/immonow-comms/clients/go/comms"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("COMMS_URL")
	userID := os.Getenv("COMMS_USER")
	if userID == "" {
		fmt.Fprintln(os.Stderr, "COMMS_USER must be set to your user ID")
		os.Exit(1)
	}

	client := comms.NewClient(baseURL, userID)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "channels":
		resp, err := client.ListChannels(1, 50)
		exitOnError(err)
		for _, ch := range resp.Items {
			fmt.Printf("  %s  %s (%d msgs)\n", ch.ID, ch.Name, ch.MessageCount)
		}

	case "create":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: comms create <name> [topic]")
			os.Exit(1)
		}
		req := comms.CreateChannelRequest{Name: os.Args[2]}
		if len(os.Args) > 3 {
			req.Topic = os.Args[3]
		}
		resp, err := client.CreateChannel(req)
		exitOnError(err)
		fmt.Printf("Created channel: %s (%s)\n", resp.Name, resp.ID)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: comms read <channel_id>")
			os.Exit(1)
		}
		resp, err := client.ListMessages(os.Args[2], 1, 50)
		exitOnError(err)
		for _, msg := range resp.Items {
			ts := msg.CreatedAt.Format("2006-01-02 15:04:05")
			from := msg.UserID
			if len(from) > 8 {
				from = from[:8]
			}
			body := msg.Content
			if msg.IsDeleted {
				body = "(deleted)"
			}
			fmt.Printf("[%s] %s: %s\n", ts, from, body)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: comms send <channel_id> <message> [parent_id]")
			os.Exit(1)
		}
		req := comms.SendMessageRequest{Content: os.Args[3]}
		if len(os.Args) > 4 {
			req.ParentID = os.Args[4]
		}
		resp, err := client.SendMessage(os.Args[2], req)
		exitOnError(err)
		fmt.Printf("Sent: %s\n", resp.ID)

	case "react":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: comms react <channel_id> <message_id> <emoji>")
			os.Exit(1)
		}
		added, err := client.ToggleReaction(os.Args[2], os.Args[3], os.Args[4])
		exitOnError(err)
		if added {
			fmt.Println("Reaction added")
		} else {
			fmt.Println("Reaction removed")
		}

	case "resources":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: comms resources <channel_id>")
			os.Exit(1)
		}
		resp, err := client.PinnedResources(os.Args[2])
		exitOnError(err)
		for _, res := range resp.Items {
			fmt.Printf("  %s/%s  %s\n", res.ResourceType, res.ResourceID, res.Label)
		}

	case "search":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: comms search <query>")
			os.Exit(1)
		}
		resp, err := client.Search(os.Args[2], 1, 20)
		exitOnError(err)
		for _, msg := range resp.Items {
			fmt.Printf("[%s] %s\n", msg.ChannelID, msg.Content)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`immonow-comms CLI - team channel messaging

Usage: comms <command> [options]

Commands:
  channels                            List channels
  create <name> [topic]               Create a channel
  read <channel_id>                   Read channel messages
  send <channel_id> <msg> [parent]    Send a message (or thread reply)
  react <channel_id> <msg_id> <emoji> Toggle a reaction
  resources <channel_id>              List pinned CRM resources
  search <query>                      Search messages
  health                              Check server health

Environment:
  COMMS_URL    Server URL (default: http://localhost:8080)
  COMMS_USER   Acting user ID (required)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
