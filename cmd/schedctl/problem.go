package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
)

// problemFile is the on-disk form of a scheduling problem plus run settings.
type problemFile struct {
	scheduler.Problem `yaml:",inline"`

	Algorithm     string                 `yaml:"algorithm"`
	Timeout       string                 `yaml:"timeout"`
	MaxIterations int                    `yaml:"max_iterations"`
	MaxBacktrack  int                    `yaml:"max_backtrack"`
	Weights       *models.QualityWeights `yaml:"weights"`
}

func loadProblem(path string) (*problemFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem file: %w", err)
	}
	var file problemFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Days) == 0 {
		file.Days = append([]models.Day(nil), models.DefaultSchoolDays...)
	}
	if len(file.Periods) == 0 {
		return nil, fmt.Errorf("%s: no periods defined", path)
	}
	for id, constraint := range file.Instructors {
		if constraint.InstructorID == "" {
			constraint.InstructorID = id
		}
		if err := scheduler.ValidateInstructorConstraint(constraint); err != nil {
			return nil, fmt.Errorf("instructor %s: %w", id, err)
		}
		file.Instructors[id] = scheduler.NormalizeInstructorConstraint(constraint)
	}
	for i := range file.Courses {
		if file.Courses[i].SemesterID == "" {
			file.Courses[i].SemesterID = file.SemesterID
		}
		if err := scheduler.ValidateCourse(file.Courses[i]); err != nil {
			return nil, fmt.Errorf("course %s: %w", file.Courses[i].ID, err)
		}
	}
	for i := range file.LockedSlots {
		file.LockedSlots[i].SemesterID = file.SemesterID
	}
	return &file, nil
}

// options merges the file's run settings with flag overrides.
func (f *problemFile) options(algorithm string, timeout time.Duration) (scheduler.Options, error) {
	opts := scheduler.Options{
		Algorithm:     models.AlgorithmHybrid,
		MaxIterations: f.MaxIterations,
		MaxBacktrack:  f.MaxBacktrack,
		Timeout:       5 * time.Minute,
	}
	if f.Weights != nil {
		opts.Weights = *f.Weights
	}
	if algorithm == "" {
		algorithm = f.Algorithm
	}
	if algorithm != "" {
		opts.Algorithm = models.SchedulingAlgorithm(algorithm)
		if !opts.Algorithm.Valid() {
			return opts, fmt.Errorf("unknown algorithm %q", algorithm)
		}
	}
	switch {
	case timeout > 0:
		opts.Timeout = timeout
	case f.Timeout != "":
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return opts, fmt.Errorf("timeout: %w", err)
		}
		opts.Timeout = d
	}
	return opts, nil
}
