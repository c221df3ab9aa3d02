// Package prompt assembles the system prompt sent ahead of every conversation.
//
// The prompt is built from fixed sections toggled by two flags. An optional override
// file replaces the built prompt entirely and can be reloaded while the process runs.
package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Options struct {
	Mobile       bool
	Subjective   bool
	OverrideFile string
}

// Build renders the default system prompt. Mobile clients get no table guidance.
func Build(mobile, subjective bool) string {
	var builder strings.Builder
	builder.WriteString(safetySection)
	builder.WriteString(identitySection)
	if !mobile {
		builder.WriteString(desktopSection)
	}
	builder.WriteString(generalSection)
	if subjective {
		builder.WriteString(subjectiveSection)
	} else {
		builder.WriteString(objectiveSection)
	}
	builder.WriteString(finalSection)
	return builder.String()
}

type Provider struct {
	opts     Options
	base     string
	logger   *slog.Logger
	mu       sync.RWMutex
	override string
}

func NewProvider(opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	opts.OverrideFile = strings.TrimSpace(opts.OverrideFile)
	provider := &Provider{
		opts:   opts,
		base:   Build(opts.Mobile, opts.Subjective),
		logger: logger,
	}
	if opts.OverrideFile != "" {
		if err := provider.Reload(); err != nil {
			logger.Warn("prompt override not loaded", "path", opts.OverrideFile, "error", err)
		}
	}
	return provider
}

// SystemPrompt returns the override when one is loaded, otherwise the built prompt.
func (p *Provider) SystemPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.override != "" {
		return p.override
	}
	return p.base
}

func (p *Provider) OverrideFile() string {
	return p.opts.OverrideFile
}

// Reload rereads the override file. A missing or empty file falls back to the built prompt.
func (p *Provider) Reload() error {
	if p.opts.OverrideFile == "" {
		return nil
	}
	content, err := os.ReadFile(p.opts.OverrideFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read prompt override: %w", err)
	}
	override := strings.TrimSpace(string(content))

	p.mu.Lock()
	changed := p.override != override
	p.override = override
	p.mu.Unlock()

	if changed {
		p.logger.Info("system prompt reloaded", "path", p.opts.OverrideFile, "override", override != "", "bytes", len(override))
	}
	return nil
}
