// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	gobolt "github.com/blinklabs-io/gobolt"
)

const (
	programName = "bolt-shell"
)

var cmdlineFlags = struct {
	debug      bool
	configFile string
	url        string
	username   string
	password   string
	database   string
	paramsJSON string
	timeout    time.Duration
}{}

// fileConfig is the optional YAML configuration file
type fileConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

func main() {
	cmd := &cobra.Command{
		Use: fmt.Sprintf("%s [flags] <query>", programName),
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must specify a query")
			}
			if len(args) > 1 {
				return errors.New("you cannot specify more than one query")
			}
			return nil
		},
		Run: cmdRun,
	}

	cmd.Flags().BoolVarP(&cmdlineFlags.debug, "debug", "D", false, "enable debug logging")
	cmd.Flags().StringVarP(&cmdlineFlags.configFile, "config", "c", "", "YAML config file")
	cmd.Flags().StringVarP(&cmdlineFlags.url, "url", "u", "bolt://localhost:7687", "connection URL")
	cmd.Flags().StringVar(&cmdlineFlags.username, "username", "", "username (overrides URL and config)")
	cmd.Flags().StringVar(&cmdlineFlags.password, "password", "", "password (overrides config; used only with a username from flag, config or BOLT_USERNAME)")
	cmd.Flags().StringVarP(&cmdlineFlags.database, "database", "d", "", "database name")
	cmd.Flags().StringVarP(&cmdlineFlags.paramsJSON, "params", "p", "", "query parameters as JSON")
	cmd.Flags().DurationVarP(&cmdlineFlags.timeout, "timeout", "t", 30*time.Second, "overall timeout")

	if err := cmd.Execute(); err != nil {
		// NOTE: we purposely don't display the error, since cobra will have already displayed it
		os.Exit(1)
	}
}

func cmdRun(cmd *cobra.Command, args []string) {
	configureLogger()
	// Credentials may come from a .env file in the working directory
	_ = godotenv.Load()
	opts, url, err := buildOptions(cmd)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	graph, err := gobolt.New(url, opts...)
	if err != nil {
		fmt.Printf("ERROR: failed to create client: %s\n", err)
		os.Exit(1)
	}
	defer graph.Close()

	query := gobolt.NewQuery(args[0])
	if cmdlineFlags.paramsJSON != "" {
		params := map[string]any{}
		if err := json.Unmarshal([]byte(cmdlineFlags.paramsJSON), &params); err != nil {
			fmt.Printf("ERROR: failed to parse params: %s\n", err)
			os.Exit(1)
		}
		query = query.WithParams(params)
	}
	if cmdlineFlags.database != "" {
		query = query.WithDatabase(cmdlineFlags.database)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmdlineFlags.timeout)
	defer cancel()
	stream, err := graph.Execute(ctx, query)
	if err != nil {
		fmt.Printf("ERROR: query failed: %s\n", err)
		os.Exit(1)
	}
	count := 0
	for {
		row, err := stream.Next(ctx)
		if err != nil {
			fmt.Printf("ERROR: stream failed: %s\n", err)
			os.Exit(1)
		}
		if row == nil {
			break
		}
		if count == 0 {
			printHeader(stream.Fields())
		}
		printRow(row)
		count++
	}
	summary := stream.Summary()
	if summary != nil {
		slog.Info(
			"query complete",
			"rows", count,
			"type", string(summary.QueryType),
			"bookmark", summary.Bookmark,
		)
	}
}

func buildOptions(cmd *cobra.Command) ([]gobolt.Option, string, error) {
	url := cmdlineFlags.url
	username := cmdlineFlags.username
	password := cmdlineFlags.password
	if cmdlineFlags.configFile != "" {
		f, err := os.Open(cmdlineFlags.configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config file: %w", err)
		}
		defer f.Close()
		var cfg fileConfig
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
		if cfg.URL != "" && !cmd.Flags().Changed("url") {
			url = cfg.URL
		}
		if username == "" {
			username = cfg.Username
		}
		if password == "" {
			password = cfg.Password
		}
		if cmdlineFlags.database == "" {
			cmdlineFlags.database = cfg.Database
		}
	}
	if username == "" {
		username = os.Getenv("BOLT_USERNAME")
	}
	if password == "" {
		password = os.Getenv("BOLT_PASSWORD")
	}
	opts := []gobolt.Option{
		gobolt.WithUserAgent(programName + "/1.0"),
	}
	if username != "" {
		opts = append(opts, gobolt.WithAuth(username, password))
	}
	return opts, url, nil
}

func printHeader(fields []string) {
	for i, field := range fields {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Print(field)
	}
	fmt.Println()
}

func printRow(row *gobolt.Row) {
	for i, value := range row.Values() {
		if i > 0 {
			fmt.Print("\t")
		}
		fmt.Printf("%v", value)
	}
	fmt.Println()
}

func configureLogger() {
	// Configure default logger
	var logger *slog.Logger
	if cmdlineFlags.debug {
		logger = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	} else {
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	}
	slog.SetDefault(logger)
}
