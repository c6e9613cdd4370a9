package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored credentials and current leaderboard rank",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type userResponse struct {
	Rank         int     `json:"rank"`
	Handle       string  `json:"twitter_handle"`
	TotalTokens  int64   `json:"total_tokens"`
	SavingsScore float64 `json:"savings_score"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	creds, err := loadCredentials()
	if err != nil {
		fmt.Println("Not logged in. Run 'tokenrank login' first.")
		return nil
	}

	base := creds.APIURL
	if base == "" {
		base = apiURL
	}

	fmt.Printf("Logged in as @%s (%s)\n", creds.Handle, base)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(base + "/api/user/" + url.PathEscape(creds.Handle))
	if err != nil {
		return fmt.Errorf("fetch rank: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var user userResponse
		if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
			return fmt.Errorf("decode rank: %w", err)
		}
		fmt.Printf("  rank:          #%d\n", user.Rank)
		fmt.Printf("  total tokens:  %d\n", user.TotalTokens)
		fmt.Printf("  savings score: %.1f%%\n", user.SavingsScore)
	case http.StatusNotFound:
		fmt.Println("  no usage recorded yet")
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
