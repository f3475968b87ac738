// cmd/tools/deployctl/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"pages-deployer/internal/app"
	"pages-deployer/internal/common/config"
	"pages-deployer/internal/common/logger"
	"pages-deployer/internal/common/validation"
	"pages-deployer/internal/models"
	"pages-deployer/internal/pipeline"
	"pages-deployer/internal/store"
)

type runOutput struct {
	BuildID   string   `json:"build_id"`
	Identity  string   `json:"identity"`
	Outcome   string   `json:"outcome"`
	State     string   `json:"state"`
	RepoURL   string   `json:"repo_url,omitempty"`
	CommitSHA string   `json:"commit_sha,omitempty"`
	PagesURL  string   `json:"pages_url,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Duplicate bool     `json:"duplicate"`
	Notified  bool     `json:"notified"`
	Error     string   `json:"error,omitempty"`
}

func main() {
	initCmd := flag.NewFlagSet("init-database", flag.ExitOnError)
	runCmd := flag.NewFlagSet("run-build", flag.ExitOnError)
	statusCmd := flag.NewFlagSet("task-status", flag.ExitOnError)
	identityCmd := flag.NewFlagSet("identity", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// run-build flags
	runFile := runCmd.String("file", "", "Path to a build request JSON file")

	// task-status flags
	statusTask := statusCmd.String("task", "", "Task name")
	statusRound := statusCmd.Int("round", 0, "Round (1 or 2, 0 for latest)")

	// identity flags
	idEmail := identityCmd.String("email", "", "Requester email")
	idTask := identityCmd.String("task", "", "Task name")

	// validate flags
	validateFile := validateCmd.String("file", "", "Path to a build request JSON file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "init-database":
		initCmd.Parse(os.Args[2:])
		if err := initDatabase(ctx); err != nil {
			fmt.Printf("Error initialising database: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Database schema is up to date.")

	case "run-build":
		runCmd.Parse(os.Args[2:])
		if *runFile == "" {
			fmt.Println("Error: file is required for run-build.")
			runCmd.Usage()
			os.Exit(1)
		}
		out, err := runBuild(ctx, *runFile)
		if err != nil {
			fmt.Printf("Error running build: %v\n", err)
			os.Exit(1)
		}
		printJSON(out)
		if out.Outcome == string(pipeline.OutcomeFatal) {
			os.Exit(2)
		}

	case "task-status":
		statusCmd.Parse(os.Args[2:])
		if *statusTask == "" {
			fmt.Println("Error: task is required for task-status.")
			statusCmd.Usage()
			os.Exit(1)
		}
		status, err := taskStatus(ctx, *statusTask, *statusRound)
		if err != nil {
			fmt.Printf("Error reading task status: %v\n", err)
			os.Exit(1)
		}
		printJSON(status)

	case "identity":
		identityCmd.Parse(os.Args[2:])
		if *idEmail == "" || *idTask == "" {
			fmt.Println("Error: email and task are required for identity.")
			identityCmd.Usage()
			os.Exit(1)
		}
		fmt.Println(pipeline.Identity(*idEmail, *idTask))

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateFile == "" {
			fmt.Println("Error: file is required for validate.")
			validateCmd.Usage()
			os.Exit(1)
		}
		if _, err := readRequest(*validateFile); err != nil {
			fmt.Printf("Request validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Request validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewStructured(cfg.Logging.Level, "console")
}

func initDatabase(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Database.Postgres.Enabled() {
		return errors.New("no postgres configured (set DATABASE_URL or database.postgres)")
	}
	// OpenStore applies the schema on connect.
	a, err := app.OpenStore(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	a.Close()
	return nil
}

func readRequest(path string) (*models.BuildRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	result, err := validation.ValidateBuildRequestJSON(raw)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, errors.New(result.Summary())
	}
	var req models.BuildRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func runBuild(ctx context.Context, path string) (*runOutput, error) {
	req, err := readRequest(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, newLogger(cfg))
	if err != nil {
		return nil, err
	}
	defer a.Close()

	res, err := a.Pipeline.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &runOutput{
		BuildID:   res.BuildID,
		Identity:  res.Identity,
		Outcome:   string(res.Outcome),
		State:     string(res.State),
		Warnings:  res.Warnings,
		Duplicate: res.Duplicate,
		Notified:  res.Notified,
	}
	if res.Repo != nil {
		out.RepoURL = res.Repo.RepoURL
		out.CommitSHA = res.Repo.CommitSHA
		out.PagesURL = res.Repo.PagesURL
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out, nil
}

func taskStatus(ctx context.Context, task string, round int) (*models.TaskStatus, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := app.OpenStore(ctx, cfg, newLogger(cfg))
	if err != nil {
		return nil, err
	}
	defer a.Close()

	rounds := []int{round}
	if round == 0 {
		rounds = []int{2, 1}
	}
	for _, r := range rounds {
		sub, err := a.Store.LatestSubmission(ctx, task, r)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		status := models.StatusFromSubmission(sub)
		return &status, nil
	}
	return nil, fmt.Errorf("no submission recorded for task %s", task)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func help() {
	fmt.Println("Usage:")
	fmt.Println("  deployctl init-database")
	fmt.Println("  deployctl run-build -file request.json")
	fmt.Println("  deployctl task-status -task <task> [-round 1|2]")
	fmt.Println("  deployctl identity -email <email> -task <task>")
	fmt.Println("  deployctl validate -file request.json")
}
