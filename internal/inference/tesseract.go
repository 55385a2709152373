package inference

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/logging"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Error("exec failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		r.logger.Debug("exec ok",
			"cmd", name,
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TesseractTextExtractor runs the tesseract CLI in TSV mode and reports one
// detection per recognized line.
type TesseractTextExtractor struct {
	binary string
	lang   string
	psm    int
	runner Runner
}

// NewTesseractTextExtractor creates an extractor. A nil runner executes the real binary.
func NewTesseractTextExtractor(binary, lang string, psm int, runner Runner, logger *slog.Logger) *TesseractTextExtractor {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	if runner == nil {
		runner = execRunner{logger: logging.NewComponentLogger(logger, "tesseract")}
	}
	return &TesseractTextExtractor{binary: binary, lang: lang, psm: psm, runner: runner}
}

func (t *TesseractTextExtractor) Name() string {
	return "tesseract"
}

func (t *TesseractTextExtractor) ExtractText(ctx context.Context, imageData []byte) ([]features.DetectedText, error) {
	tmp, err := os.CreateTemp("", "photolink-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(imageData); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	// tesseract <file> stdout -l <lang> [--psm N] tsv
	args := []string{tmp.Name(), "stdout", "-l", t.lang}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return parseTSV(string(out)), nil
}

type lineKey struct {
	block, par, line int
}

type lineAcc struct {
	words   []string
	confSum float64
}

// parseTSV groups word rows (level 5) into lines. Line confidence is the mean
// word confidence scaled to 0..1.
func parseTSV(out string) []features.DetectedText {
	var order []lineKey
	lines := make(map[lineKey]*lineAcc)

	for i, ln := range strings.Split(out, "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if word == "" || err != nil || conf < 0 {
			continue
		}

		key := lineKey{atoi(cols[2]), atoi(cols[3]), atoi(cols[4])}
		acc, ok := lines[key]
		if !ok {
			acc = &lineAcc{}
			lines[key] = acc
			order = append(order, key)
		}
		acc.words = append(acc.words, word)
		acc.confSum += conf
	}

	detections := make([]features.DetectedText, 0, len(order))
	for _, key := range order {
		acc := lines[key]
		mean := acc.confSum / float64(len(acc.words))
		detections = append(detections, features.DetectedText{
			Text:       strings.Join(acc.words, " "),
			Confidence: min(1, mean/100),
		})
	}
	return detections
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
