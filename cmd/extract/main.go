package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/user/offer-image-service/internal/adapter/colly_fetcher"
	"github.com/user/offer-image-service/internal/adapter/file_fetcher"
	"github.com/user/offer-image-service/internal/adapter/sqlite"
	"github.com/user/offer-image-service/internal/delivery/http/response"
	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/pipeline"
	"github.com/user/offer-image-service/internal/repository"
	"github.com/user/offer-image-service/internal/usecase"
	"github.com/user/offer-image-service/pkg/logger"
	"github.com/user/offer-image-service/pkg/metrics"
)

// Exit codes per failure kind.
const (
	exitFailure    = 1
	exitValidation = 2
	exitFetch      = 3
	exitNoImages   = 4
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(exitFailure)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "extract",
		Usage:     "extract enhanced product image URLs from a 1688.com offer page",
		UsageText: "extract --url https://detail.1688.com/offer/123.html [--max 12] [--html-file page.html]",
		Writer:    out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "product page URL", Required: true},
			&cli.IntFlag{Name: "max", Value: pipeline.DefaultMaxImages, Usage: "maximum number of images"},
			&cli.StringFlag{Name: "html-file", Usage: "read the page from this file instead of fetching it"},
			&cli.StringFlag{Name: "rules", Usage: "YAML rules file overriding the defaults"},
			&cli.StringFlag{Name: "history", Usage: "SQLite file recording every run"},
			&cli.DurationFlag{Name: "timeout", Value: colly_fetcher.DefaultTimeout, Usage: "page fetch timeout"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"},
		},
		Action: func(c *cli.Context) error {
			return run(c, out)
		},
	}
}

func run(c *cli.Context, out io.Writer) error {
	log, err := logger.New(c.String("log-level"))
	if err != nil {
		return cli.Exit(err.Error(), exitValidation)
	}
	defer log.Sync()

	var fetcher repository.PageFetcher = colly_fetcher.New(colly_fetcher.Options{Timeout: c.Duration("timeout")}, log)
	if path := c.String("html-file"); path != "" {
		ff, err := file_fetcher.New(path)
		if err != nil {
			return cli.Exit(err.Error(), exitValidation)
		}
		fetcher = ff
	}

	rules := pipeline.DefaultRules()
	if path := c.String("rules"); path != "" {
		if rules, err = pipeline.LoadRules(path); err != nil {
			return cli.Exit(err.Error(), exitValidation)
		}
	}

	p, err := pipeline.New(fetcher, rules, pipeline.Options{MarketplaceDomain: "1688.com"},
		metrics.New(prometheus.NewRegistry()), log)
	if err != nil {
		return cli.Exit(err.Error(), exitValidation)
	}

	deps := usecase.Dependencies{Pipeline: p, Logger: log}
	if path := c.String("history"); path != "" {
		history, err := sqlite.Open(path)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		defer history.Close()
		deps.History = history
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout")+5*time.Second)
	defer cancel()

	result, err := usecase.NewImageExtractor(deps, usecase.Options{}).Extract(ctx, usecase.ExtractRequest{
		URL:       c.String("url"),
		MaxImages: c.Int("max"),
	})
	if err != nil {
		log.Debug("extraction failed", zap.Error(err))
		return writeFailure(out, err)
	}

	images := result.Images
	if images == nil {
		images = []entity.AnalyzedImage{}
	}
	return writeJSON(out, response.ExtractResponse{
		Success:              true,
		RunID:                result.RunID,
		Title:                result.Extraction.Title,
		SourceURL:            result.Extraction.SourceURL,
		Images:               images,
		TotalCandidatesFound: result.Extraction.TotalCandidatesFound,
		ValidCandidates:      result.Extraction.ValidCandidates,
		ExtractedCount:       result.Extraction.ExtractedCount,
	})
}

// writeFailure prints the failure body and returns an error carrying the exit code.
func writeFailure(out io.Writer, err error) error {
	kind, message, code := "InternalError", err.Error(), exitFailure
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		kind, message = string(pe.Kind), pe.Message
		switch pe.Kind {
		case pipeline.KindValidation:
			code = exitValidation
		case pipeline.KindFetch:
			code = exitFetch
		case pipeline.KindNoImagesFound:
			code = exitNoImages
		}
	}
	if werr := writeJSON(out, response.ErrorResponse{Error: response.ErrorBody{Kind: kind, Message: message}}); werr != nil {
		return werr
	}
	return cli.Exit(fmt.Sprintf("%s: %s", kind, message), code)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
