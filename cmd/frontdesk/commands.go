package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"frontdesk/internal/config"
	"frontdesk/internal/knowledge"
	"frontdesk/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question as a caller",
	Long: `Ask a question as a caller would. A known question is answered
immediately; an unknown one creates a pending help request for a
supervisor.

Examples:
  frontdesk ask "What are your hours?"
  frontdesk ask --caller walk-in-7 "Do you validate parking?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		callerID, _ := cmd.Flags().GetString("caller")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/agent/ingest", map[string]string{
			"caller_id":  callerID,
			"transcript": question,
		})
		if err != nil {
			return err
		}

		var result struct {
			Known     bool   `json:"known"`
			Answer    string `json:"answer"`
			RequestID string `json:"request_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Known {
			fmt.Println(result.Answer)
			return nil
		}
		printWarning("No answer on file — escalated to a supervisor")
		fmt.Printf("  request: %s\n", colorize(colorCyan, result.RequestID))
		return nil
	},
}

func init() {
	askCmd.Flags().String("caller", "cli", "caller identifier")
}

// --- requests ---

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List help requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/requests?status=" + status)
		if err != nil {
			return err
		}

		var requests []struct {
			ID        string `json:"request_id"`
			CallerID  string `json:"caller_id"`
			Question  string `json:"question"`
			Status    string `json:"status"`
			Answer    string `json:"answer"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &requests); err != nil {
			return err
		}

		if len(requests) == 0 {
			fmt.Printf("No %s requests.\n", status)
			return nil
		}

		for _, r := range requests {
			question := r.Question
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  %s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				r.CreatedAt,
				r.CallerID,
				question,
			)
			if r.Answer != "" {
				fmt.Printf("          → %s\n", r.Answer)
			}
		}
		return nil
	},
}

var requestsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single help request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/requests/" + args[0])
		if err != nil {
			return err
		}

		var request any
		if err := decodeJSON(resp, &request); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(request)
	},
}

func init() {
	requestsCmd.Flags().String("status", string(storage.StatusPending), "pending, resolved or unresolved")
	requestsCmd.AddCommand(requestsShowCmd)
}

// --- resolve ---

var resolveCmd = &cobra.Command{
	Use:   "resolve <request-id> <answer>",
	Short: "Answer a pending help request as a supervisor",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		requestID := args[0]
		answer := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/resolve", map[string]string{
			"request_id": requestID,
			"answer":     answer,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Resolved %s — the knowledge base learned the answer", requestID)
		return nil
	},
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge base entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/knowledge?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			ID       string `json:"id"`
			Question string `json:"question"`
			Answer   string `json:"answer"`
			Source   string `json:"source"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("Knowledge base is empty.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  [%s]\n", colorize(colorBold, e.Question), e.Source)
			fmt.Printf("  %s\n", e.Answer)
		}
		return nil
	},
}

var kbAddCmd = &cobra.Command{
	Use:   "add <question> <answer>",
	Short: "Add a question/answer pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/knowledge", map[string]string{
			"question": args[0],
			"answer":   args[1],
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added entry %s", result["id"])
		return nil
	},
}

var kbImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import question/answer pairs",
	Long: `Bulk-import question/answer pairs into the knowledge base.

Files may be JSON ([{"question": ..., "answer": ...}]), PDF, or plain
text in Q:/A: format. URLs are fetched and parsed the same way.

Examples:
  frontdesk kb import --file ./faq.json
  frontdesk kb import --file ./handbook.pdf
  frontdesk kb import --url https://example.com/faq`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		urls, _ := cmd.Flags().GetStringSlice("url")

		if file == "" && len(urls) == 0 {
			return fmt.Errorf("one of --file or --url is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Import writes to the database directly; the store's busy timeout
		// covers a concurrently running server.
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		importer := knowledge.NewImporter(store, nil)

		total := 0
		if file != "" {
			n, err := importer.ImportFile(file)
			if err != nil {
				return fmt.Errorf("importing %s: %w", file, err)
			}
			total += n
		}
		if len(urls) > 0 {
			n, err := importer.ImportURLs(cmd.Context(), urls)
			if err != nil {
				return fmt.Errorf("importing URLs: %w", err)
			}
			total += n
		}

		printSuccess("Imported %d entries", total)
		return nil
	},
}

var kbSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed starter entries into an empty knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		seeded, err := knowledge.SeedDefaults(store)
		if err != nil {
			return err
		}
		if !seeded {
			printWarning("Knowledge base is not empty — nothing seeded")
			return nil
		}
		printSuccess("Seeded starter entries")
		return nil
	},
}

func init() {
	kbListCmd.Flags().Int("limit", 50, "maximum number of entries to list")
	kbImportCmd.Flags().String("file", "", "file to import (json, pdf, or Q:/A: text)")
	kbImportCmd.Flags().StringSlice("url", nil, "URL to fetch and import (repeatable)")
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbAddCmd)
	kbCmd.AddCommand(kbImportCmd)
	kbCmd.AddCommand(kbSeedCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
