package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in via the device flow and store an API key",
	Long: `Log in to the leaderboard using the device code flow.

A short code is displayed; approve it in your browser with your Twitter
handle. The CLI polls until the code is approved and then stores the
issued API key in ~/.tokenrank/credentials.json.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

type deviceStartResponse struct {
	Code            string `json:"device_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type devicePollResponse struct {
	Status string `json:"status"`
	Handle string `json:"twitter_handle"`
	APIKey string `json:"api_key"`
}

func runLogin(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	start, err := startDeviceFlow(client)
	if err != nil {
		return fmt.Errorf("start login: %w", err)
	}

	fmt.Printf("Your device code: %s\n\n", start.Code)
	fmt.Printf("Visit %s and approve the code with your Twitter handle.\n", start.VerificationURI)
	fmt.Printf("The code expires in %d minutes. Waiting for approval...\n\n", start.ExpiresIn/60)

	interval := time.Duration(start.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(start.ExpiresIn) * time.Second)

	for time.Now().Before(deadline) {
		time.Sleep(interval)

		poll, status, err := pollDeviceFlow(client, start.Code)
		if err != nil {
			return fmt.Errorf("poll login: %w", err)
		}
		switch {
		case status == http.StatusOK && poll.Status == "complete":
			creds := Credentials{Handle: poll.Handle, APIKey: poll.APIKey, APIURL: apiURL}
			if err := saveCredentials(creds); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}
			fmt.Printf("Logged in as @%s. Credentials saved.\n", poll.Handle)
			return nil
		case status == http.StatusOK && poll.Status == "pending":
			continue
		case status == http.StatusNotFound:
			return fmt.Errorf("device code expired; run login again")
		default:
			return fmt.Errorf("login failed (status %d)", status)
		}
	}

	return fmt.Errorf("device code expired before approval; run login again")
}

func startDeviceFlow(client *http.Client) (deviceStartResponse, error) {
	resp, err := client.Post(apiURL+"/api/auth/device", "application/json", bytes.NewReader(nil))
	if err != nil {
		return deviceStartResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return deviceStartResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var start deviceStartResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return deviceStartResponse{}, err
	}
	return start, nil
}

func pollDeviceFlow(client *http.Client, code string) (devicePollResponse, int, error) {
	resp, err := client.Get(apiURL + "/api/auth/device?code=" + url.QueryEscape(code))
	if err != nil {
		return devicePollResponse{}, 0, err
	}
	defer resp.Body.Close()

	var poll devicePollResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&poll); err != nil {
			return devicePollResponse{}, resp.StatusCode, err
		}
	}
	return poll, resp.StatusCode, nil
}
