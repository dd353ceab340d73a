package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <problem.yaml>",
		Short: "Report courses that cannot possibly be scheduled",
		Long: `check validates the problem file and runs the static feasibility check the API
performs before it accepts an auto-schedule request. It exits non-zero when any
course cannot fit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadProblem(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			conflicts := scheduler.CheckFeasibility(file.Problem)
			if len(conflicts) == 0 {
				fmt.Fprintf(out, "ok: %d courses, %d days, %d periods\n", len(file.Courses), len(file.Days), len(file.Periods))
				return nil
			}
			for _, c := range conflicts {
				fmt.Fprintf(out, "%s\t%s %s\trequired %d, available %d: %s\n",
					c.CourseID, c.SubjectCode, c.Classroom, c.Required, c.Available, c.Reason)
			}
			return &scheduler.FeasibilityError{Conflicts: conflicts}
		},
	}
}
