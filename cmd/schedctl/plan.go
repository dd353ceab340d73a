package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

type planFlags struct {
	algorithm string
	timeout   time.Duration
	output    string
	verbose   bool
	strict    bool
}

func newPlanCmd() *cobra.Command {
	flags := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan <problem.yaml>",
		Short: "Run the scheduling engine and print the timetable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.algorithm, "algorithm", "", "GREEDY, BACKTRACKING or HYBRID (default from file, then HYBRID)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Run timeout (default from file, then 5m)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "table", "Output format (table, yaml, json)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log engine progress to stderr")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Exit non-zero when any course could not be placed")
	return cmd
}

func runPlan(cmd *cobra.Command, path string, flags *planFlags) error {
	file, err := loadProblem(path)
	if err != nil {
		return err
	}
	opts, err := file.options(flags.algorithm, flags.timeout)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if flags.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	result, err := scheduler.NewEngine(logger).Schedule(ctx, file.Problem, opts)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), flags.output, file.Problem, result); err != nil {
		return err
	}
	if flags.strict && len(result.FailedCourses) > 0 {
		return fmt.Errorf("%d of %d courses could not be scheduled", len(result.FailedCourses), result.TotalCourses)
	}
	return nil
}

func writeResult(w io.Writer, format string, problem scheduler.Problem, result *scheduler.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(result)
	case "table", "":
		return writeTable(w, problem, result)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeTable(w io.Writer, problem scheduler.Problem, result *scheduler.Result) error {
	periodOrder := make(map[string]int, len(problem.Periods))
	for _, period := range problem.Periods {
		periodOrder[period.ID] = period.Order
	}
	placements := append([]scheduler.Placement(nil), result.Placements...)
	sort.Slice(placements, func(i, j int) bool {
		a, b := placements[i], placements[j]
		if a.ClassroomID != b.ClassroomID {
			return a.ClassroomID < b.ClassroomID
		}
		if a.Day != b.Day {
			return a.Day.Index() < b.Day.Index()
		}
		return periodOrder[a.PeriodID] < periodOrder[b.PeriodID]
	})

	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Classroom", "Day", "Period", "Subject", "Instructors", "Room"})
	for _, p := range placements {
		room := p.RoomID
		if room == "" {
			room = "-"
		}
		table.Append([]string{p.ClassroomID, string(p.Day), p.PeriodID, p.SubjectID, strings.Join(p.InstructorIDs, ", "), room})
	}
	table.Render()

	fmt.Fprintf(w, "\nscheduled %d/%d courses, quality %.2f, %d iterations", result.ScheduledCourses, result.TotalCourses, result.QualityScore, result.Iterations)
	if result.TimedOut {
		fmt.Fprint(w, " (timed out)")
	}
	fmt.Fprintln(w)
	for _, failed := range result.FailedCourses {
		fmt.Fprintf(w, "  unplaced %s: %s\n", courseLabel(failed), failed.Reason)
	}
	return nil
}

func courseLabel(f models.FailedCourse) string {
	if f.SubjectCode != "" && f.Classroom != "" {
		return fmt.Sprintf("%s (%s %s)", f.CourseID, f.SubjectCode, f.Classroom)
	}
	return f.CourseID
}
