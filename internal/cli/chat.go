package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// chatHTTPTimeout bounds one request/response round trip from the terminal
// client, including model generation.
const chatHTTPTimeout = 90 * time.Second

type chatClientRequest struct {
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type chatClientResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

func newChatCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(os.Stdin)

			fmt.Println("Welcome! A few questions before we start.")

			name := promptLine(in, "Your name [Guest]: ")
			if name == "" {
				name = "Guest"
			}

			var age int
			for {
				raw := promptLine(in, "Your age: ")
				n, err := strconv.Atoi(raw)
				if err != nil || n < 1 || n > 120 {
					fmt.Println("Please enter an age between 1 and 120.")
					continue
				}
				age = n
				break
			}

			gender := promptLine(in, "Your gender (female/male/other): ")

			fmt.Printf("\nHello %s! Ask me anything about your health. Type \"quit\" to leave.\n\n", name)

			httpClient := &http.Client{Timeout: chatHTTPTimeout}
			sessionID := ""

			for {
				msg := promptLine(in, "> ")
				switch strings.ToLower(msg) {
				case "quit", "exit":
					fmt.Println("Take care!")
					return nil
				case "":
					fmt.Println("Please type a message.")
					continue
				}

				resp, err := sendChat(httpClient, serverURL, chatClientRequest{
					Name:      name,
					Age:       age,
					Gender:    gender,
					Message:   msg,
					SessionID: sessionID,
				})
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				if resp.Error != "" {
					fmt.Printf("error: %s\n", resp.Error)
					continue
				}

				sessionID = resp.SessionID
				fmt.Println()
				fmt.Println(resp.Reply)
				fmt.Println()
			}
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8400", "chat server base URL")

	return cmd
}

func sendChat(client *http.Client, baseURL string, req chatClientRequest) (*chatClientResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpResp, err := client.Post(
		strings.TrimRight(baseURL, "/")+"/chat",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp chatClientResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

func promptLine(in *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
