package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
	"github.com/iota-uz/org-import/modules/orgimport/services/hierarchy"
	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
	"github.com/iota-uz/org-import/pkg/composables"
)

const (
	entityDepartment = "department"
	entityPosition   = "position"
)

// importJob writes the accepted rows of one report. Department waves are
// written before position waves; rows inside a wave are written concurrently.
type importJob struct {
	store       Store
	runID       uuid.UUID
	actor       composables.Actor
	maxPasses   int
	concurrency int
	logger      *logrus.Entry

	report      *Report
	departments map[string]orgrow.Department
	positions   map[string]orgrow.Position
	deptPlan    hierarchy.WavePlan
	posPlan     hierarchy.WavePlan
	skipped     issue.List

	mu            sync.Mutex
	departmentIDs map[string]uuid.UUID
	positionIDs   map[string]uuid.UUID
	deptCreated   []Created
	posCreated    []Created
	done          int
	total         int
	boundary      string
}

func newImportJob(store Store, report *Report, actor composables.Actor, opts Options, logger *logrus.Entry) *importJob {
	j := &importJob{
		store:         store,
		runID:         report.RunID,
		actor:         actor,
		maxPasses:     opts.MaxWavePasses,
		concurrency:   opts.WaveConcurrency,
		logger:        logger,
		report:        report,
		departmentIDs: make(map[string]uuid.UUID, len(report.existingDepartments)),
		positionIDs:   make(map[string]uuid.UUID, len(report.existingPositions)),
	}
	for code, id := range report.existingDepartments {
		j.departmentIDs[code] = id
	}
	for code, id := range report.existingPositions {
		j.positionIDs[code] = id
	}
	return j
}

// plan drops rows with blocking findings and re-plans the waves over what is
// left. Rows whose parent was dropped end up blocked and are skipped as well.
func (j *importJob) plan() {
	blocked := blockedRows(j.report.Issues)
	for _, e := range j.report.Issues {
		if e.IsBlocking() {
			j.skipped = append(j.skipped, e)
		}
	}

	j.departments = make(map[string]orgrow.Department)
	var deptRows []orgrow.Department
	for _, d := range j.report.Departments {
		if blocked[rowRef{issue.SheetDepartments, d.SourceRow}] {
			continue
		}
		if _, dup := j.departments[d.DeptCode]; dup {
			continue
		}
		j.departments[d.DeptCode] = d
		deptRows = append(deptRows, d)
	}
	j.deptPlan = hierarchy.PlanWaves(departmentNodes(deptRows), hasCode(j.report.existingDepartments), j.maxPasses)
	j.skipped = append(j.skipped, unflagged(j.skipped, j.deptPlan.Issues(issue.SheetDepartments, "parent_dept_code"))...)

	planned := make(map[string]bool, j.deptPlan.Size())
	for _, w := range j.deptPlan.Waves {
		for _, n := range w {
			planned[n.ID] = true
		}
	}

	j.positions = make(map[string]orgrow.Position)
	var posRows []orgrow.Position
	for _, p := range j.report.Positions {
		if blocked[rowRef{issue.SheetPositions, p.SourceRow}] {
			continue
		}
		if _, existing := j.report.existingDepartments[p.DeptCode]; !existing && !planned[p.DeptCode] {
			j.skipped = append(j.skipped, issue.New(issue.UnresolvableDependency, issue.SheetPositions, p.SourceRow, "dept_code",
				fmt.Sprintf("department %q of position %q is not being imported", p.DeptCode, p.PosCode)).
				WithCodes(p.PosCode, p.DeptCode))
			continue
		}
		if prev, dup := j.positions[p.PosCode]; dup {
			// Accepted duplicates describe several incumbents of one position.
			prev.IncumbentsCount += p.IncumbentsCount
			j.positions[p.PosCode] = prev
			continue
		}
		j.positions[p.PosCode] = p
		posRows = append(posRows, p)
	}
	j.posPlan = hierarchy.PlanWaves(positionNodes(posRows), hasCode(j.report.existingPositions), j.maxPasses)
	j.skipped = append(j.skipped, unflagged(j.skipped, j.posPlan.Issues(issue.SheetPositions, "reports_to_pos_code"))...)
	j.total = j.deptPlan.Size() + j.posPlan.Size()
}

func (j *importJob) persist(ctx context.Context, tracker *progress.Tracker) error {
	tracker.StartImport(j.total)
	j.boundary = "none"
	if err := j.runWaves(ctx, tracker, entityDepartment, j.deptPlan, j.writeDepartment); err != nil {
		return j.fail(tracker, err)
	}
	if err := j.runWaves(ctx, tracker, entityPosition, j.posPlan, j.writePosition); err != nil {
		return j.fail(tracker, err)
	}
	tracker.CompleteImport()
	return nil
}

type waveError struct {
	entity   string
	wave     int
	waves    int
	boundary string
	cause    error
}

func (e *waveError) Error() string {
	return fmt.Sprintf("%s wave %d/%d failed (last completed: %s): %v", e.entity, e.wave, e.waves, e.boundary, e.cause)
}

func (e *waveError) Unwrap() error { return e.cause }

func (j *importJob) runWaves(
	ctx context.Context,
	tracker *progress.Tracker,
	entity string,
	plan hierarchy.WavePlan,
	write func(ctx context.Context, code string, wave int) error,
) error {
	for i, wave := range plan.Waves {
		number := i + 1
		if err := ctx.Err(); err != nil {
			return &waveError{entity: entity, wave: number, waves: len(plan.Waves), boundary: j.boundary, cause: err}
		}
		started := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.concurrency)
		for _, n := range wave {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := write(gctx, n.ID, number); err != nil {
					return fmt.Errorf("%s %q: %w", entity, n.ID, err)
				}
				// Dispatched under the counter lock so progress never moves backwards.
				j.mu.Lock()
				defer j.mu.Unlock()
				j.done++
				tracker.UpdateImport(j.done, j.total, fmt.Sprintf("%s wave %d/%d", entity, number, len(plan.Waves)))
				return nil
			})
		}
		err := g.Wait()
		importWaveDuration.WithLabelValues(entity).Observe(time.Since(started).Seconds())
		if err != nil {
			return &waveError{entity: entity, wave: number, waves: len(plan.Waves), boundary: j.boundary, cause: err}
		}
		j.boundary = fmt.Sprintf("%s wave %d/%d", entity, number, len(plan.Waves))
		j.logger.WithFields(logrus.Fields{
			"entity": entity,
			"wave":   number,
			"rows":   len(wave),
		}).Debug("org import wave committed")
	}
	return nil
}

func (j *importJob) writeDepartment(ctx context.Context, code string, wave int) error {
	d := j.departments[code]
	in := DepartmentInsert{
		RunID:       j.runID,
		Code:        d.DeptCode,
		Name:        d.Name,
		Description: d.Description,
		Metadata:    d.Metadata,
		CreatedBy:   j.actor.ID,
	}
	if parent := orgrow.ParentCode(d.ParentDeptCode); parent != "" {
		id, ok := j.lookup(j.departmentIDs, parent)
		if !ok {
			return fmt.Errorf("parent department %q has no id", parent)
		}
		in.ParentID = &id
	}
	id, err := j.store.InsertDepartment(ctx, in)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.departmentIDs[code] = id
	j.deptCreated = append(j.deptCreated, Created{Code: code, ID: id, Wave: wave})
	j.mu.Unlock()
	return nil
}

func (j *importJob) writePosition(ctx context.Context, code string, wave int) error {
	p := j.positions[code]
	deptID, ok := j.lookup(j.departmentIDs, p.DeptCode)
	if !ok {
		return fmt.Errorf("department %q has no id", p.DeptCode)
	}
	in := PositionInsert{
		RunID:           j.runID,
		Code:            p.PosCode,
		Title:           p.Title,
		DepartmentID:    deptID,
		IsManager:       p.IsManager,
		IncumbentsCount: p.IncumbentsCount,
		CreatedBy:       j.actor.ID,
	}
	if manager := orgrow.ParentCode(p.ReportsToPosCode); manager != "" {
		id, ok := j.lookup(j.positionIDs, manager)
		if !ok {
			return fmt.Errorf("reports-to position %q has no id", manager)
		}
		in.ReportsToID = &id
	}
	id, err := j.store.InsertPosition(ctx, in)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.positionIDs[code] = id
	j.posCreated = append(j.posCreated, Created{Code: code, ID: id, Wave: wave})
	j.mu.Unlock()
	return nil
}

func (j *importJob) lookup(ids map[string]uuid.UUID, code string) (uuid.UUID, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	id, ok := ids[code]
	return id, ok
}

func (j *importJob) fail(tracker *progress.Tracker, err error) error {
	j.mu.Lock()
	committed := j.done
	j.mu.Unlock()
	msg := fmt.Sprintf("%v; %d of %d rows were written", err, committed, j.total)
	tracker.Error(msg)
	j.logger.WithError(err).WithField("committed", committed).Error("org import failed")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newServiceError(http.StatusRequestTimeout, CodeCanceled, msg, err)
	}
	return newServiceError(http.StatusInternalServerError, CodeWriteFailed, msg, err)
}

// created returns the rows written so far, ordered by wave then code.
func (j *importJob) created() ([]Created, []Created) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return sortCreated(j.deptCreated), sortCreated(j.posCreated)
}

func sortCreated(in []Created) []Created {
	out := append([]Created(nil), in...)
	slices.SortFunc(out, func(a, b Created) int {
		if a.Wave != b.Wave {
			return a.Wave - b.Wave
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out
}

type rowRef struct {
	sheet string
	row   int
}

func blockedRows(list issue.List) map[rowRef]bool {
	out := make(map[rowRef]bool)
	for _, e := range list {
		if e.IsBlocking() && e.Row > 0 {
			out[rowRef{e.Sheet, e.Row}] = true
		}
	}
	return out
}
