// Package watch is a subcommand of the root command. It samples the CPU
// frequency at a fixed interval and reports the observed minimum, average,
// and maximum when sampling ends.
package watch

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pstatectl/internal/common"
	"pstatectl/internal/pstates"
	"pstatectl/internal/report"
	"pstatectl/internal/util"

	"github.com/Knetic/govaluate"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const cmdName = "watch"

var examples = []string{
	fmt.Sprintf("  Watch all CPUs:                  $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Watch four CPUs for one minute:  $ %s %s --cpus 0-3 --duration 60", common.AppName, cmdName),
	fmt.Sprintf("  Publish Prometheus gauges:       $ %s %s --prom-addr :9911", common.AppName, cmdName),
	fmt.Sprintf("  Warn when a CPU leaves the cap:  $ %s %s --alert \"cur_mhz > 2400\"", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Sample the CPU frequency while a workload runs",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagInterval int
	flagDuration int
	flagPromAddr string
	flagAlert    string
)

const (
	flagIntervalName = "interval"
	flagDurationName = "duration"
	flagPromAddrName = "prom-addr"
	flagAlertName    = "alert"
)

// alertVariables are the parameters an alert expression may reference.
var alertVariables = []string{"cpu", "cur_mhz", "min_mhz", "max_mhz", "turbo"}

func init() {
	Cmd.Flags().IntVar(&flagInterval, flagIntervalName, 2, "")
	Cmd.Flags().IntVar(&flagDuration, flagDurationName, 0, "")
	Cmd.Flags().StringVar(&common.FlagCPUs, common.FlagCPUsName, "", "")
	Cmd.Flags().StringVar(&flagPromAddr, flagPromAddrName, "", "")
	Cmd.Flags().StringVar(&flagAlert, flagAlertName, "", "")

	Cmd.SetUsageFunc(usageFunc)
}

func usageFunc(cmd *cobra.Command) error {
	cmd.Printf("Usage: %s [flags]\n\n", cmd.CommandPath())
	cmd.Printf("Examples:\n%s\n\n", cmd.Example)
	cmd.Println("Flags:")
	for _, group := range getFlagGroups() {
		cmd.Printf("  %s:\n", group.GroupName)
		for _, flag := range group.Flags {
			flagDefault := ""
			if cmd.Flags().Lookup(flag.Name).DefValue != "" {
				flagDefault = fmt.Sprintf(" (default: %s)", cmd.Flags().Lookup(flag.Name).DefValue)
			}
			cmd.Printf("    --%-20s %s%s\n", flag.Name, flag.Help, flagDefault)
		}
	}
	cmd.Println("\nGlobal Flags:")
	cmd.Parent().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
		flagDefault := ""
		if cmd.Parent().PersistentFlags().Lookup(pf.Name).DefValue != "" {
			flagDefault = fmt.Sprintf(" (default: %s)", cmd.Flags().Lookup(pf.Name).DefValue)
		}
		cmd.Printf("  --%-20s %s%s\n", pf.Name, pf.Usage, flagDefault)
	})
	return nil
}

func getFlagGroups() []common.FlagGroup {
	var groups []common.FlagGroup
	flags := []common.Flag{
		{
			Name: flagIntervalName,
			Help: "number of seconds between samples",
		},
		{
			Name: flagDurationName,
			Help: "number of seconds to sample. If 0, sampling runs until interrupted.",
		},
		{
			Name: common.FlagCPUsName,
			Help: "comma-separated list of CPU ranges, e.g., 0-15,32, default is all CPUs",
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Sampling Options",
		Flags:     flags,
	})
	flags = []common.Flag{
		{
			Name: flagPromAddrName,
			Help: "address to publish Prometheus gauges on, e.g., :9911. If empty, the endpoint is not started.",
		},
		{
			Name: flagAlertName,
			Help: fmt.Sprintf("expression evaluated per CPU on every sample, e.g., \"cur_mhz > 2400 && !turbo\". Variables: %s. Logs a warning when true.", strings.Join(alertVariables, ", ")),
		},
	}
	groups = append(groups, common.FlagGroup{
		GroupName: "Monitoring Options",
		Flags:     flags,
	})
	return groups
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagInterval < 1 {
		return common.FlagValidationError(cmd, "interval must be at least 1 second")
	}
	if flagDuration < 0 {
		return common.FlagValidationError(cmd, "duration must be a positive integer")
	}
	if flagDuration != 0 && flagDuration < flagInterval {
		return common.FlagValidationError(cmd, fmt.Sprintf("duration must be greater than or equal to the sampling interval (%ds)", flagInterval))
	}
	// validate the CPU list
	if common.FlagCPUs != "" && common.FlagCPUs != "all" {
		if _, err := util.SelectiveIntRangeToIntList(common.FlagCPUs); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("invalid CPU list: %s, expected ranges like 0-15,32", common.FlagCPUs))
		}
	}
	// validate the alert expression
	if flagAlert != "" {
		if _, err := govaluate.NewEvaluableExpression(flagAlert); err != nil {
			return common.FlagValidationError(cmd, fmt.Sprintf("invalid alert expression: %v", err))
		}
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	// appContext is the application context that holds common data and resources.
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)
	provider, err := common.NewProvider(appContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	cpus, err := watchedCPUs(provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	var alertExpr *govaluate.EvaluableExpression
	if flagAlert != "" {
		alertExpr, err = govaluate.NewEvaluableExpression(flagAlert)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			slog.Error(err.Error())
			cmd.SilenceUsage = true
			return err
		}
	}
	if flagPromAddr != "" {
		startPrometheusServer(flagPromAddr)
	}
	if err := watchLoop(provider, cpus, alertExpr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slog.Error(err.Error())
		cmd.SilenceUsage = true
		return err
	}
	return nil
}

// watchedCPUs resolves the --cpus flag against the online CPUs.
func watchedCPUs(provider *pstates.SysfsProvider) ([]int, error) {
	online := provider.CPUs()
	if len(online) == 0 {
		return nil, fmt.Errorf("no online CPUs found")
	}
	if common.FlagCPUs == "" || common.FlagCPUs == "all" {
		return online, nil
	}
	requested, err := util.SelectiveIntRangeToIntList(common.FlagCPUs)
	if err != nil {
		return nil, fmt.Errorf("invalid CPU list %q: %w", common.FlagCPUs, err)
	}
	slices.Sort(requested)
	requested = slices.Compact(requested)
	onlineSet := mapset.NewSet(online...)
	for _, cpu := range requested {
		if !onlineSet.Contains(cpu) {
			return nil, fmt.Errorf("CPU %d is not online", cpu)
		}
	}
	return requested, nil
}

// cpuSample holds one CPU's frequency readings from a single pass.
type cpuSample struct {
	cpu   int
	curHz uint64
	minHz uint64
	maxHz uint64
}

// sample holds the readings of one sampling pass.
type sample struct {
	taken time.Time
	turbo bool
	cpus  []cpuSample
}

func takeSample(provider *pstates.SysfsProvider, cpus []int) (sample, error) {
	s := sample{taken: time.Now()}
	turbo, err := provider.GetCPUProp(pstates.PropTurbo, cpus[0])
	if err != nil {
		return s, err
	}
	s.turbo = turbo.Str() == "on"
	for _, cpu := range cpus {
		curHz, err := provider.CurFreq(cpu)
		if err != nil {
			return s, fmt.Errorf("failed to read the frequency of CPU %d: %w", cpu, err)
		}
		minFreq, err := provider.GetCPUProp(pstates.PropMinFreq, cpu)
		if err != nil {
			return s, err
		}
		maxFreq, err := provider.GetCPUProp(pstates.PropMaxFreq, cpu)
		if err != nil {
			return s, err
		}
		s.cpus = append(s.cpus, cpuSample{cpu: cpu, curHz: curHz, minHz: minFreq.Uint64(), maxHz: maxFreq.Uint64()})
	}
	return s, nil
}

func watchLoop(provider *pstates.SysfsProvider, cpus []int, alertExpr *govaluate.EvaluableExpression) error {
	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChannel)
	ticker := time.NewTicker(time.Duration(flagInterval) * time.Second)
	defer ticker.Stop()
	// a nil deadline channel never fires, i.e., sampling runs until a signal
	var deadline <-chan time.Time
	if flagDuration > 0 {
		deadline = time.After(time.Duration(flagDuration) * time.Second)
	}
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	printer := message.NewPrinter(language.English) // use printer to get commas at thousands, e.g., 3,400.00
	stats := newWatchStats(cpus)
	var sampleErr error
loop:
	for {
		s, err := takeSample(provider, cpus)
		if err != nil {
			sampleErr = err
			break
		}
		stats.add(s)
		printSample(s, printer, tty)
		if alertExpr != nil {
			evaluateAlerts(alertExpr, s)
		}
		if flagPromAddr != "" {
			updatePrometheusMetrics(s)
		}
		select {
		case <-ticker.C:
		case sig := <-sigChannel:
			slog.Info("received signal", slog.String("signal", sig.String()))
			break loop
		case <-deadline:
			break loop
		}
	}
	if tty {
		// finish the live status line
		fmt.Println("")
	}
	if sampleErr != nil {
		return sampleErr
	}
	printSummary(stats, printer)
	return nil
}

func hzToMHz(hz uint64) float64 {
	return float64(hz) / 1_000_000
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// aggregateMHz reduces the per-CPU current frequencies to the lowest, mean,
// and highest value in MHz.
func aggregateMHz(s sample) (low float64, avg float64, high float64) {
	if len(s.cpus) == 0 {
		return
	}
	low = hzToMHz(s.cpus[0].curHz)
	high = low
	sum := 0.0
	for _, cs := range s.cpus {
		mhz := hzToMHz(cs.curHz)
		if mhz < low {
			low = mhz
		}
		if mhz > high {
			high = mhz
		}
		sum += mhz
	}
	avg = sum / float64(len(s.cpus))
	return
}

// formatSampleLine renders one sampling pass as a single text line.
func formatSampleLine(s sample, printer *message.Printer) string {
	low, avg, high := aggregateMHz(s)
	return printer.Sprintf("%s  low %0.2f MHz  avg %0.2f MHz  high %0.2f MHz  turbo %s",
		s.taken.Format("15:04:05"), low, avg, high, onOff(s.turbo))
}

func printSample(s sample, printer *message.Printer, tty bool) {
	line := formatSampleLine(s, printer)
	if tty {
		// overwrite the previous line, sampling output is a live status line
		fmt.Printf("\r\x1b[K%s", line)
		return
	}
	fmt.Println(line)
}

// alertParameters builds the variables an alert expression sees for one CPU.
// govaluate compares numbers as float64.
func alertParameters(s sample, cs cpuSample) map[string]interface{} {
	return map[string]interface{}{
		"cpu":     float64(cs.cpu),
		"cur_mhz": hzToMHz(cs.curHz),
		"min_mhz": hzToMHz(cs.minHz),
		"max_mhz": hzToMHz(cs.maxHz),
		"turbo":   s.turbo,
	}
}

// evaluateAlerts runs the alert expression for each CPU in the sample and
// logs a warning for every CPU where it evaluates true.
func evaluateAlerts(expr *govaluate.EvaluableExpression, s sample) {
	for _, cs := range s.cpus {
		result, err := expr.Evaluate(alertParameters(s, cs))
		if err != nil {
			slog.Error("failed to evaluate alert expression", slog.String("expression", expr.String()), slog.String("error", err.Error()))
			continue
		}
		alerted, ok := result.(bool)
		if !ok {
			slog.Error("alert expression did not evaluate to a boolean", slog.String("expression", expr.String()))
			continue
		}
		if alerted {
			slog.Warn("alert expression is true", slog.Int("cpu", cs.cpu), slog.Float64("cur_mhz", hzToMHz(cs.curHz)), slog.String("expression", expr.String()))
		}
	}
}

// cpuStats accumulates the observed current frequency of one CPU.
type cpuStats struct {
	samples int
	sumMHz  float64
	minMHz  float64
	maxMHz  float64
}

type watchStats struct {
	order []int
	byCPU map[int]*cpuStats
}

func newWatchStats(cpus []int) *watchStats {
	ws := &watchStats{order: cpus, byCPU: make(map[int]*cpuStats, len(cpus))}
	for _, cpu := range cpus {
		ws.byCPU[cpu] = &cpuStats{}
	}
	return ws
}

func (ws *watchStats) add(s sample) {
	for _, cs := range s.cpus {
		stats := ws.byCPU[cs.cpu]
		if stats == nil {
			continue
		}
		mhz := hzToMHz(cs.curHz)
		if stats.samples == 0 || mhz < stats.minMHz {
			stats.minMHz = mhz
		}
		if mhz > stats.maxMHz {
			stats.maxMHz = mhz
		}
		stats.sumMHz += mhz
		stats.samples++
	}
}

const observedTableName = "Observed Frequencies"

// summaryTableValues folds the accumulated statistics into a report table.
func summaryTableValues(stats *watchStats, printer *message.Printer) report.TableValues {
	cpuField := report.Field{Name: "CPU"}
	samplesField := report.Field{Name: "Samples"}
	minField := report.Field{Name: "Min (MHz)"}
	avgField := report.Field{Name: "Avg (MHz)"}
	maxField := report.Field{Name: "Max (MHz)"}
	for _, cpu := range stats.order {
		cs := stats.byCPU[cpu]
		if cs == nil || cs.samples == 0 {
			continue
		}
		cpuField.Values = append(cpuField.Values, strconv.Itoa(cpu))
		samplesField.Values = append(samplesField.Values, strconv.Itoa(cs.samples))
		minField.Values = append(minField.Values, printer.Sprintf("%0.2f", cs.minMHz))
		avgField.Values = append(avgField.Values, printer.Sprintf("%0.2f", cs.sumMHz/float64(cs.samples)))
		maxField.Values = append(maxField.Values, printer.Sprintf("%0.2f", cs.maxMHz))
	}
	return report.TableValues{
		TableDefinition: report.TableDefinition{Name: observedTableName, HasRows: true},
		Fields:          []report.Field{cpuField, samplesField, minField, avgField, maxField},
	}
}

// printSummary renders the observed per-CPU frequency statistics.
func printSummary(stats *watchStats, printer *message.Printer) {
	tableValues := summaryTableValues(stats, printer)
	reportBytes, err := report.Create(report.FormatTxt, []report.TableValues{tableValues}, "")
	if err != nil {
		slog.Error("failed to create summary report", slog.String("error", err.Error()))
		return
	}
	fmt.Println("")
	fmt.Print(string(reportBytes))
}
