package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/spreadsheet"
	"github.com/iota-uz/org-import/modules/orgimport/services/duplicates"
	"github.com/iota-uz/org-import/modules/orgimport/services/hierarchy"
	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
	"github.com/iota-uz/org-import/modules/orgimport/services/validation"
	"github.com/iota-uz/org-import/pkg/composables"
)

type Options struct {
	MaxRowsPerSheet       int
	MaxWavePasses         int
	WaveConcurrency       int
	AllowPartial          bool
	AutoResolveDuplicates bool
}

type Request struct {
	RunID    uuid.UUID
	FileName string
	Payload  []byte
	// DuplicateStrategy resolves every duplicate group with one strategy.
	// Empty falls back to the recommended strategy when auto resolution is on.
	DuplicateStrategy duplicates.Strategy
	DryRun            bool
	AllowPartial      bool
}

type ImportService struct {
	store     Store
	extractor *spreadsheet.Extractor
	validator *validation.Validator
	opts      Options
	logger    *logrus.Logger
}

func NewImportService(store Store, logger *logrus.Logger, opts Options) *ImportService {
	if opts.MaxWavePasses <= 0 {
		opts.MaxWavePasses = hierarchy.DefaultMaxPasses
	}
	if opts.WaveConcurrency <= 0 {
		opts.WaveConcurrency = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ImportService{
		store:     store,
		extractor: spreadsheet.NewExtractor(spreadsheet.Options{MaxRowsPerSheet: opts.MaxRowsPerSheet}),
		validator: validation.New(),
		opts:      opts,
		logger:    logger,
	}
}

// Preview parses, deduplicates, validates and plans a workbook without writing.
// The tracker is left in the processing stage on success so Run can continue it.
func (s *ImportService) Preview(ctx context.Context, req Request, tracker *progress.Tracker) (*Report, error) {
	if tracker == nil {
		tracker = progress.NewTracker(progress.WithTickInterval(0))
	}
	if req.RunID == uuid.Nil {
		req.RunID = uuid.New()
	}
	log := s.logger.WithFields(logrus.Fields{"run_id": req.RunID, "file": req.FileName})
	fail := func(err *ServiceError, result string) (*Report, error) {
		tracker.Error(err.Error())
		recordRun(result)
		log.WithError(err).Warn("org import rejected")
		return nil, err
	}

	tracker.Start()
	tracker.StartUpload(len(req.Payload))
	tracker.UpdateUpload(len(req.Payload), len(req.Payload))
	tracker.CompleteUpload()

	tracker.StartParsing(1)
	extraction, err := s.extractor.Extract(req.Payload)
	if err != nil {
		return fail(extractionError(err), "rejected")
	}
	tracker.UpdateParsing(1, 1, fmt.Sprintf("%d departments, %d positions", len(extraction.Departments), len(extraction.Positions)))
	tracker.CompleteParsing()
	recordRows(len(extraction.Departments), len(extraction.Positions))

	existingDepartments, err := s.store.ListDepartmentCodes(ctx)
	if err != nil {
		return fail(newServiceError(http.StatusServiceUnavailable, CodeStore, "cannot load existing departments", err), "error")
	}
	existingPositions, err := s.store.ListPositionCodes(ctx)
	if err != nil {
		return fail(newServiceError(http.StatusServiceUnavailable, CodeStore, "cannot load existing positions", err), "error")
	}

	report := &Report{
		RunID:                req.RunID,
		Issues:               extraction.Issues,
		DepartmentDuplicates: duplicates.Detect(extraction.Departments),
		PositionDuplicates:   duplicates.Detect(extraction.Positions),
		existingDepartments:  existingDepartments,
		existingPositions:    existingPositions,
	}
	departments, positions := extraction.Departments, extraction.Positions
	if req.DuplicateStrategy != "" || s.opts.AutoResolveDuplicates {
		if report.DepartmentResolutions, err = resolveAll(report.DepartmentDuplicates, req.DuplicateStrategy); err != nil {
			return fail(newServiceError(http.StatusBadRequest, CodeValidation, "invalid duplicate strategy", err), "rejected")
		}
		if report.PositionResolutions, err = resolveAll(report.PositionDuplicates, req.DuplicateStrategy); err != nil {
			return fail(newServiceError(http.StatusBadRequest, CodeValidation, "invalid duplicate strategy", err), "rejected")
		}
		departments = duplicates.Apply(departments, report.DepartmentResolutions)
		positions = duplicates.Apply(positions, report.PositionResolutions)
	}
	report.Departments, report.Positions = departments, positions

	total := len(departments) + len(positions)
	tracker.StartValidation(total)
	report.Issues = append(report.Issues, s.validator.ValidateDepartments(departments, codeSet(existingDepartments), validation.Options{
		AcceptedDuplicates: validation.NewCodeSet(duplicates.AcceptedKeys(report.DepartmentResolutions)...),
	})...)
	tracker.UpdateValidation(len(departments), total, report.Issues.Count(issue.SeverityError), report.Issues.Count(issue.SeverityWarning))
	report.Issues = append(report.Issues, s.validator.ValidatePositions(positions, departments, codeSet(existingDepartments), codeSet(existingPositions), validation.Options{
		AcceptedDuplicates: validation.NewCodeSet(duplicates.AcceptedKeys(report.PositionResolutions)...),
	})...)
	tracker.UpdateValidation(total, total, report.Issues.Count(issue.SeverityError), report.Issues.Count(issue.SeverityWarning))
	tracker.CompleteValidation()

	tracker.StartProcessing(total)
	report.DepartmentPlan = hierarchy.PlanWaves(departmentNodes(departments), hasCode(existingDepartments), s.opts.MaxWavePasses)
	tracker.UpdateProcessing(len(departments), total, "departments planned")
	report.PositionPlan = hierarchy.PlanWaves(positionNodes(positions), hasCode(existingPositions), s.opts.MaxWavePasses)
	tracker.UpdateProcessing(total, total, "positions planned")
	report.Issues = append(report.Issues, unflagged(report.Issues, report.DepartmentPlan.Issues(issue.SheetDepartments, "parent_dept_code"))...)
	report.Issues = append(report.Issues, unflagged(report.Issues, report.PositionPlan.Issues(issue.SheetPositions, "reports_to_pos_code"))...)
	report.Hierarchy = hierarchy.Enrich(departmentNodes(departments))
	report.Forest = hierarchy.BuildTree(departmentNodes(departments))
	tracker.CompleteProcessing()

	report.summarize()
	recordIssues(report.Issues)
	log.WithFields(logrus.Fields{
		"departments": report.Summary.Departments,
		"positions":   report.Summary.Positions,
		"errors":      report.Summary.Errors,
		"warnings":    report.Summary.Warnings,
	}).Info("org import preview ready")
	return report, nil
}

// Run previews the workbook and, unless it is a dry run, persists it wave by wave.
// Blocking findings abort the run before any write unless partial imports are allowed.
func (s *ImportService) Run(ctx context.Context, req Request, tracker *progress.Tracker) (*Result, error) {
	if tracker == nil {
		tracker = progress.NewTracker(progress.WithTickInterval(0))
	}
	report, err := s.Preview(ctx, req, tracker)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithField("run_id", report.RunID)
	result := &Result{Report: report, DryRun: req.DryRun}

	allowPartial := s.opts.AllowPartial || req.AllowPartial
	if report.Blocking() && !allowPartial {
		msg := fmt.Sprintf("validation found %d errors; nothing was imported", report.Summary.Errors)
		tracker.Error(msg)
		recordRun("invalid")
		return result, newServiceError(http.StatusUnprocessableEntity, CodeValidation, msg, nil)
	}
	if req.DryRun {
		tracker.Complete("dry run: nothing was written")
		recordRun("dry_run")
		return result, nil
	}

	actor, err := composables.UseActor(ctx)
	if err != nil {
		tracker.Error("no authenticated actor")
		recordRun("error")
		return result, newServiceError(http.StatusUnauthorized, CodeUnauthenticated, "import requires an authenticated actor", err)
	}

	job := newImportJob(s.store, report, actor, s.opts, log)
	job.plan()
	result.Skipped = job.skipped
	if err := job.persist(ctx, tracker); err != nil {
		result.Departments, result.Positions = job.created()
		recordRun("failed")
		return result, err
	}
	result.Departments, result.Positions = job.created()
	tracker.Complete(fmt.Sprintf("imported %d departments and %d positions", len(result.Departments), len(result.Positions)))
	recordRun("imported")
	log.WithFields(logrus.Fields{
		"departments": len(result.Departments),
		"positions":   len(result.Positions),
		"skipped":     len(result.Skipped),
	}).Info("org import finished")
	return result, nil
}

func resolveAll[T orgrow.Record[T]](d duplicates.Detection[T], strategy duplicates.Strategy) ([]duplicates.Resolution[T], error) {
	if strategy == "" {
		return duplicates.AutoResolveAll(d), nil
	}
	out := make([]duplicates.Resolution[T], 0, len(d.Entries))
	for _, e := range d.Entries {
		res, err := duplicates.Resolve(e, strategy)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func codeSet(m map[string]uuid.UUID) validation.CodeSet {
	s := make(validation.CodeSet, len(m))
	for code := range m {
		s.Add(code)
	}
	return s
}

// unflagged drops findings for rows that already carry a blocking finding.
func unflagged(existing, candidates issue.List) issue.List {
	flagged := blockedRows(existing)
	var out issue.List
	for _, c := range candidates {
		if !flagged[rowRef{c.Sheet, c.Row}] {
			out = append(out, c)
		}
	}
	return out
}
