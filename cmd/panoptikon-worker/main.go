// Command panoptikon-worker runs exactly one C6 job and exits: the
// subprocess spawned by jobs.DefaultSpawner for data_extraction,
// data_deletion, folder_rescan, and folder_update jobs.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/panoptikon-go/panoptikon/internal/extraction"
	"github.com/panoptikon-go/panoptikon/internal/extractors"
	"github.com/panoptikon-go/panoptikon/internal/inference"
	"github.com/panoptikon-go/panoptikon/internal/jobs"
	"github.com/panoptikon-go/panoptikon/internal/rules"
	"github.com/panoptikon-go/panoptikon/internal/storage"
	"github.com/panoptikon-go/panoptikon/internal/watch"
)

type stringSlice []string

func (s *stringSlice) String() string     { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	jobType := flag.String("job-type", "", "data_extraction, data_deletion, folder_rescan, or folder_update")
	indexDB := flag.String("index-db", "", "path to the index database")
	userDataDB := flag.String("user-data-db", "", "path to the user_data database")
	storageDB := flag.String("storage-db", "", "path to the storage database")
	metadata := flag.String("metadata", "", "inference-id \"group/id\" for data_extraction/data_deletion")
	embeddingDimensions := flag.Int("embedding-dimensions", 0, "vec0 index dimensions, 0 to skip")
	inferenceURL := flag.String("inference-api-url", "http://localhost:7777", "inference service base URL")
	var include, exclude stringSlice
	flag.Var(&include, "include", "folder to include (repeatable)")
	flag.Var(&exclude, "exclude", "folder to exclude (repeatable)")
	flag.Parse()

	paths := storage.Paths{IndexDB: *indexDB, UserDataDB: *userDataDB, StorageDB: *storageDB}

	switch jobs.Kind(*jobType) {
	case jobs.KindDataExtraction:
		runExtraction(paths, *embeddingDimensions, *inferenceURL, *metadata)
	case jobs.KindDataDeletion:
		runDeletion(paths, *embeddingDimensions, *inferenceURL, *metadata)
	case jobs.KindFolderRescan, jobs.KindFolderUpdate:
		runFolderScan(include, exclude)
	default:
		log.Fatalf("unknown job type %q", *jobType)
	}
}

func splitInferenceID(s string) (group, id string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		log.Fatalf("metadata must be \"group/id\", got %q", s)
	}
	return parts[0], parts[1]
}

func openStore(paths storage.Paths, embeddingDimensions int) *storage.Handle {
	h, err := storage.OpenWrite(paths, false, embeddingDimensions)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	return h
}

func runExtraction(paths storage.Paths, embeddingDimensions int, inferenceURL, metadata string) {
	group, id := splitInferenceID(metadata)

	h := openStore(paths, embeddingDimensions)
	defer h.Close()

	client := inference.NewHTTPClient(inferenceURL)
	registry, err := extractors.NewRegistry(client, storage.NewReader(h.DB))
	if err != nil {
		log.Fatalf("failed to build extractor registry: %v", err)
	}
	ctx := context.Background()
	if err := registry.Refresh(ctx); err != nil {
		log.Fatalf("failed to refresh extractor registry: %v", err)
	}

	engine := rules.NewEngine(h.DB)
	runner := extraction.NewRunner(h.DB, engine, registry, client)

	jobLog, err := runner.Run(ctx, group, id, extraction.NoOpProgressReporter{})
	if err != nil {
		log.Fatalf("extraction job failed: %v", err)
	}
	log.Printf("extraction job complete: setter_id=%d processed=%d failed=%d", jobLog.SetterID, jobLog.ProcessedItems, jobLog.FailedItems)
}

func runDeletion(paths storage.Paths, embeddingDimensions int, inferenceURL, metadata string) {
	group, id := splitInferenceID(metadata)

	h := openStore(paths, embeddingDimensions)
	defer h.Close()

	client := inference.NewHTTPClient(inferenceURL)
	registry, err := extractors.NewRegistry(client, storage.NewReader(h.DB))
	if err != nil {
		log.Fatalf("failed to build extractor registry: %v", err)
	}
	if err := registry.Refresh(context.Background()); err != nil {
		log.Fatalf("failed to refresh extractor registry: %v", err)
	}

	if err := extraction.DeleteSetterData(h.DB, storage.NewReader(h.DB), registry, group, id); err != nil {
		log.Fatalf("deletion job failed: %v", err)
	}
	log.Printf("deletion job complete: %s/%s", group, id)
}

func runFolderScan(include, exclude []string) {
	paths, err := watch.ListMatching(include, exclude)
	if err != nil {
		log.Fatalf("folder scan failed: %v", err)
	}
	log.Printf("folder scan found %d candidate paths under %v", len(paths), include)
}
