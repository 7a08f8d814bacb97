package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"modhost/internal/bus"
	"modhost/internal/host"
	"modhost/internal/jobs"
	"modhost/internal/resolver"
	"modhost/internal/scheduler"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <module-dir>",
	Short: "Discover and order modules without initializing them",
	Long: `Loads every module in the directory, resolves the dependency order and
prints it together with each module's declared dependencies and any load
errors. No module code beyond Load runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the modhost version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		apiVersion := 0
		if cfg != nil {
			apiVersion = cfg.Kernel.Version
		}
		fmt.Fprintf(cmd.OutOrStdout(), "modhost %s (module API version %d)\n", version, apiVersion)
		return nil
	},
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle    = lipgloss.NewStyle().Bold(true)
	builtinStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	depStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func runInspect(cmd *cobra.Command, args []string) error {
	h := host.New(args[0])
	// Built-ins only need to exist for ordering; they are never initialized.
	if err := h.Register(bus.NewModule(bus.New(0, 0))); err != nil {
		return err
	}
	if err := h.Register(scheduler.NewModule(scheduler.New(0))); err != nil {
		return err
	}
	if err := h.Register(jobs.NewModule(jobs.New(1, 0), 0)); err != nil {
		return err
	}

	if err := h.Discover(args[0]); err != nil {
		return err
	}
	res, resolveErr := h.Resolve()
	renderInspect(cmd.OutOrStdout(), args[0], h, res, resolveErr)
	if resolveErr != nil {
		return fmt.Errorf("dependency resolution failed: %w", resolveErr)
	}
	return nil
}

func renderInspect(w io.Writer, dir string, h *host.Host, res resolver.Result, resolveErr error) {
	records := make(map[string]host.Record)
	var discovered []string
	for _, r := range h.Records() {
		records[r.Name] = r
		discovered = append(discovered, r.Name)
	}

	order := res.Order
	if resolveErr != nil {
		order = discovered
	}

	var lines []string
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Modules in %s", dir)))
	for i, name := range order {
		r := records[name]
		line := fmt.Sprintf("%2d. %s", i+1, nameStyle.Render(name))
		if r.Builtin {
			line += " " + builtinStyle.Render("(built-in)")
		} else {
			line += " " + builtinStyle.Render(fmt.Sprintf("[%s] %s", r.Loader, r.Path))
		}
		if len(r.Requires) > 0 {
			line += "\n      requires: " + depStyle.Render(strings.Join(r.Requires, ", "))
		}
		if len(r.Optional) > 0 {
			line += "\n      optional: " + depStyle.Render(strings.Join(r.Optional, ", "))
		}
		lines = append(lines, line)
	}

	for _, warn := range res.Warnings {
		lines = append(lines, warnStyle.Render("warning: "+warn.String()))
	}
	for _, err := range h.LoadErrors() {
		lines = append(lines, errorStyle.Render("load error: "+err.Error()))
	}
	if resolveErr != nil {
		lines = append(lines, errorStyle.Render("resolve error: "+resolveErr.Error()))
	}

	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
}
