package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/constants"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
	"github.com/kozaktomas/attendance-kiosk/internal/enrollment"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Manage enrolled persons",
	Long:  `Commands for listing, importing and removing enrolled persons.`,
}

var personsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled persons",
	RunE:  runPersonsList,
}

var personsImportCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Enroll persons from a YAML manifest of photos",
	Long: `Enroll persons in bulk from a YAML manifest.

Every entry needs a person ID, a name and a photo with exactly one
acceptable face. Entries whose face is already enrolled are rejected the
same way the registration page rejects them.

Examples:
  attendance-kiosk persons import staff.yaml
  attendance-kiosk persons import staff.yaml --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonsImport,
}

var personsDedupCmd = &cobra.Command{
	Use:   "dedup-check",
	Short: "Report enrolled persons whose faces look alike",
	Long: `Compare every enrolled face against the others and list the pairs whose
similarity reaches the threshold. Such pairs are usually the same person
enrolled twice.`,
	RunE: runPersonsDedup,
}

var personsDeleteCmd = &cobra.Command{
	Use:   "delete <person-id>",
	Short: "Remove a person and their attendance history",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsDelete,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsListCmd, personsImportCmd, personsDedupCmd, personsDeleteCmd)

	personsListCmd.Flags().Bool("json", false, "Output as JSON")

	personsImportCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel extractions")

	personsDedupCmd.Flags().Float64("threshold", 0, "Minimum similarity to report (defaults to DEDUP_THRESHOLD)")
	personsDedupCmd.Flags().Int("limit", constants.DefaultDedupCheckLimit, "Nearest persons compared per person")
	personsDedupCmd.Flags().Bool("json", false, "Output as JSON")
}

// PersonOutput is the JSON form of an enrolled person.
type PersonOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	ShiftStart string `json:"shift_start,omitempty"`
	ShiftEnd   string `json:"shift_end,omitempty"`
}

func runPersonsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	persons, err := store.ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}

	if mustGetBool(cmd, "json") {
		out := make([]PersonOutput, 0, len(persons))
		for i := range persons {
			p := &persons[i]
			out = append(out, PersonOutput{
				ID: p.ID, Name: p.Name, Email: p.Email, Department: p.Department,
				ShiftStart: p.ShiftStart, ShiftEnd: p.ShiftEnd,
			})
		}
		if err := json.NewEncoder(os.Stdout).Encode(out); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
		return nil
	}

	if len(persons) == 0 {
		fmt.Println("No persons enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tSHIFT\tEMAIL")
	fmt.Fprintln(w, "--\t----\t----------\t-----\t-----")
	for i := range persons {
		p := &persons[i]
		shift := "-"
		if p.ShiftStart != "" || p.ShiftEnd != "" {
			shift = p.ShiftStart + "-" + p.ShiftEnd
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Department, shift, p.Email)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d persons\n", len(persons))
	return nil
}

func runPersonsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	manifest, err := enrollment.LoadManifest(args[0])
	if err != nil {
		return err
	}
	if len(manifest.Persons) == 0 {
		fmt.Println("Manifest lists no persons.")
		return nil
	}

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	ex, err := openExtractor(&cfg.Recognition)
	if err != nil {
		return err
	}
	defer ex.Close()

	matcher, err := loadMatcher(ctx, cfg, store)
	if err != nil {
		return err
	}

	service := enrollment.NewService(nil, ex, matcher, store, nil, enrollment.Config{
		DedupThreshold: cfg.Recognition.DedupThreshold,
		MinDetScore:    cfg.Recognition.MinDetScore,
	})

	bar := progressbar.NewOptions(len(manifest.Persons),
		progressbar.OptionSetDescription("Enrolling persons"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("persons"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	results := service.Import(ctx, manifest, enrollment.ImportOptions{
		Concurrency: mustGetInt(cmd, "concurrency"),
		OnProgress:  func() { _ = bar.Add(1) },
	})
	fmt.Println()

	var enrolled int
	for _, r := range results {
		if r.Response.Success {
			enrolled++
			continue
		}
		fmt.Printf("  %s: %s\n", r.PersonID, r.Response.Message)
	}
	saveHNSWIndex()

	fmt.Printf("\nEnrolled %d of %d persons\n", enrolled, len(results))
	if enrolled < len(results) {
		return fmt.Errorf("%d entries failed", len(results)-enrolled)
	}
	return nil
}

// DuplicatePair is two enrolled persons with alike faces.
type DuplicatePair struct {
	PersonA    string  `json:"person_a"`
	PersonB    string  `json:"person_b"`
	Similarity float64 `json:"similarity"`
}

// nearestFinder is implemented by backends with an indexed vector search.
type nearestFinder interface {
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]database.Person, []float64, error)
}

func runPersonsDedup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = cfg.Recognition.DedupThreshold
	}
	limit := mustGetInt(cmd, "limit")

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	persons, err := store.ListPersons(ctx)
	if err != nil {
		return fmt.Errorf("failed to list persons: %w", err)
	}

	finder, indexed := store.(nearestFinder)
	seen := make(map[[2]string]bool)
	var pairs []DuplicatePair
	for i := range persons {
		p := &persons[i]
		var candidates []database.Person
		var similarities []float64
		if indexed {
			candidates, similarities, err = finder.FindNearest(ctx, p.Embedding, limit+1)
			if err != nil {
				return fmt.Errorf("failed to search neighbours of %s: %w", p.ID, err)
			}
		} else {
			candidates, similarities = nearestLinear(persons, p.Embedding, limit+1)
		}

		for j := range candidates {
			other := candidates[j].ID
			if other == p.ID || similarities[j] < threshold {
				continue
			}
			key := [2]string{min(p.ID, other), max(p.ID, other)}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, DuplicatePair{PersonA: key[0], PersonB: key[1], Similarity: similarities[j]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })

	if mustGetBool(cmd, "json") {
		if err := json.NewEncoder(os.Stdout).Encode(pairs); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
		return nil
	}

	if len(pairs) == 0 {
		fmt.Printf("No faces alike above %.2f among %d persons.\n", threshold, len(persons))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON A\tPERSON B\tSIMILARITY")
	fmt.Fprintln(w, "--------\t--------\t----------")
	for _, pair := range pairs {
		fmt.Fprintf(w, "%s\t%s\t%.3f\n", pair.PersonA, pair.PersonB, pair.Similarity)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d suspicious pairs\n", len(pairs))
	return nil
}

// nearestLinear ranks persons by cosine similarity to embedding.
func nearestLinear(persons []database.Person, embedding []float32, limit int) ([]database.Person, []float64) {
	idx := make([]int, len(persons))
	sims := make([]float64, len(persons))
	for i := range persons {
		idx[i] = i
		sims[i] = database.CosineSimilarity(embedding, persons[i].Embedding)
	}
	sort.SliceStable(idx, func(a, b int) bool { return sims[idx[a]] > sims[idx[b]] })
	if len(idx) > limit {
		idx = idx[:limit]
	}

	out := make([]database.Person, len(idx))
	outSims := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = persons[k]
		outSims[i] = sims[k]
	}
	return out, outSims
}

func runPersonsDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	store, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.DeletePerson(ctx, args[0]); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("person %s is not enrolled", args[0])
		}
		return fmt.Errorf("failed to delete person: %w", err)
	}

	// A persisted HNSW graph would still hold the deleted face.
	if cfg.Database.HNSWIndexPath != "" {
		if err := os.Remove(cfg.Database.HNSWIndexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: failed to remove HNSW index: %v\n", err)
		}
	}

	fmt.Printf("Deleted person %s\n", args[0])
	return nil
}
