// Package main provides ragctl, a CLI for trying extraction and chunking
// locally and for pushing files to a running rag-server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mernjs/rag-pipeline/internal/api"
	"github.com/mernjs/rag-pipeline/internal/chunker"
	"github.com/mernjs/rag-pipeline/internal/extract"
	"github.com/mernjs/rag-pipeline/internal/rag"
)

var (
	mimeType   string
	maxLen     int
	serverURL  string
	collection string
	tags       string
	docVersion string
	topK       int
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "RAG pipeline command line tool",
	Long:  "Extract and chunk documents locally, or ingest and search them on a running rag-server.",
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the text extracted from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Print the chunks a file would be split into",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Upload files to a running server",
	Long: `Uploads each file to POST /api/documents.

Environment variables:
  RAG_SERVER_URL  Server base URL (default: http://localhost:8080)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a running server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	extractCmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (default: inferred from the extension)")
	chunkCmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (default: inferred from the extension)")
	chunkCmd.Flags().IntVar(&maxLen, "max-len", chunker.DefaultMaxLen, "maximum chunk length in characters")

	defaultServer := getEnv("RAG_SERVER_URL", "http://localhost:8080")
	for _, c := range []*cobra.Command{ingestCmd, searchCmd} {
		c.Flags().StringVar(&serverURL, "server", defaultServer, "server base URL")
	}
	ingestCmd.Flags().StringVar(&collection, "collection", "", "collection (default: uncategorized)")
	ingestCmd.Flags().StringVar(&tags, "tags", "", "comma separated tags")
	ingestCmd.Flags().StringVar(&docVersion, "version", "", "version label (default: v1.0)")
	searchCmd.Flags().IntVarP(&topK, "k", "k", rag.DefaultTopK, "number of results")

	rootCmd.AddCommand(extractCmd, chunkCmd, ingestCmd, searchCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func extractFile(ctx context.Context, path string) (string, extract.Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return extract.Extract(ctx, data, mimeType, path)
}

func runExtract(cmd *cobra.Command, args []string) error {
	text, format, err := extractFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Format: %s\n\n", format)
	fmt.Println(text)
	return nil
}

func runChunk(cmd *cobra.Command, args []string) error {
	text, _, err := extractFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	chunks := chunker.Split(text, maxLen)
	for i, c := range chunks {
		fmt.Printf("--- chunk %d (%d chars) ---\n%s\n\n", i, utf8.RuneCountInString(c), c)
	}
	fmt.Printf("%d chunks\n", len(chunks))
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Minute}
	start := time.Now()

	var failed int
	for _, path := range args {
		res, err := uploadFile(cmd.Context(), client, path)
		if err != nil {
			failed++
			fmt.Printf("  - %s: %v\n", path, err)
			continue
		}
		fmt.Printf("  + %s: %s (%d chunks)\n", path, res.DocumentID, res.ChunkCount)
	}

	fmt.Println()
	fmt.Printf("Ingested %d/%d files in %s\n", len(args)-failed, len(args), time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

func uploadFile(ctx context.Context, client *http.Client, path string) (*rag.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{"collection": collection, "tags": tags, "version": docVersion}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res rag.IngestResult
	if err := do(client, req, http.StatusCreated, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("q", strings.Join(args, " "))
	q.Set("k", strconv.Itoa(topK))

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/search?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	var res api.SearchResponse
	if err := do(&http.Client{Timeout: time.Minute}, req, http.StatusOK, &res); err != nil {
		return err
	}
	if len(res.Results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range res.Results {
		fmt.Printf("[%d] %.3f  %s (%s, %s)\n    %s\n", i+1, r.Score, r.Title, r.Type, r.Collection, oneLine(r.Text, 160))
	}
	return nil
}

// do sends req and decodes the JSON body into out, or the server's error message.
func do(client *http.Client, req *http.Request, want int, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var apiErr api.ErrorResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
