package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/trackd/internal/model"
	"github.com/sandeepkv93/trackd/internal/storage"
	"github.com/sandeepkv93/trackd/internal/tags"
)

type recordingInvalidator struct {
	calls []int64
}

func (r *recordingInvalidator) InvalidateTemplate(_ context.Context, templateID int64) {
	r.calls = append(r.calls, templateID)
}

type fixture struct {
	repo   *storage.SQLiteRepository
	engine *Engine
	inval  *recordingInvalidator
}

func setupEngine(t *testing.T) fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "reconcile-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	repo, err := storage.NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	inval := &recordingInvalidator{}
	registry := tags.NewRegistry(repo, nil)
	return fixture{repo: repo, engine: NewEngine(repo, registry, inval, nil), inval: inval}
}

func strPtr(s string) *string                { return &s }
func int64Ptr(v int64) *int64                { return &v }
func statusPtr(s model.Status) *model.Status { return &s }

func TestCreateWithItemsAndTags(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	planned, _ := model.ParseDate("2025-01-01")
	task, err := fx.engine.Create(ctx, model.KindTask, "alice", Draft{
		Name:        "Demo",
		Description: "D",
		Items: []ItemPatch{{
			Name:        strPtr("Build"),
			Status:      statusPtr(model.StatusInProcess),
			PlannedDate: NullableDate{Set: true, Date: &planned},
			TagsInput:   &[]string{"y", "x"},
		}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	items, err := fx.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Name != "Build" || items[0].Status != "process" {
		t.Fatalf("unexpected item: %#v", items[0])
	}
	if items[0].PlannedDate == nil || model.FormatDate(*items[0].PlannedDate) != "2025-01-01" {
		t.Fatalf("unexpected planned date: %v", items[0].PlannedDate)
	}

	names, err := fx.repo.ItemTagNames(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("tag names: %v", err)
	}
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Fatalf("expected sorted tags [x y], got %v", names)
	}

	aliceTags, err := fx.repo.ListTags(ctx, storage.TagListFilter{Owner: "alice"})
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(aliceTags) != 2 {
		t.Fatalf("expected tag rows for x and y, got %#v", aliceTags)
	}
}

func TestCreateDefaultsItemFields(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	task, err := fx.engine.Create(ctx, model.KindTask, "alice", Draft{
		Name:  "Demo",
		Items: []ItemPatch{{}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	items, err := fx.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if items[0].Name != model.DefaultItemName || items[0].Status != string(model.StatusInProcess) {
		t.Fatalf("unexpected defaults: %#v", items[0])
	}
}

func seedTask(t *testing.T, fx fixture) (storage.Aggregate, storage.Item) {
	t.Helper()
	ctx := context.Background()
	planned, _ := model.ParseDate("2025-01-01")
	task, err := fx.engine.Create(ctx, model.KindTask, "alice", Draft{
		Name:        "Demo",
		Description: "D",
		Items: []ItemPatch{{
			Name:        strPtr("Build"),
			Status:      statusPtr(model.StatusCompleted),
			PlannedDate: NullableDate{Set: true, Date: &planned},
			TagsInput:   &[]string{"x", "y"},
		}},
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}
	items, err := fx.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("seed items: %v", err)
	}
	return task, items[0]
}

func TestPartialMergeTouchesOnlyPresentFields(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	report, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Items: &[]ItemPatch{{ID: int64Ptr(item.ID), Name: strPtr("Renamed")}},
	}, PartialMerge)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(report) != 1 || report[0].Created || report[0].ID != item.ID {
		t.Fatalf("expected matched report entry for %d, got %#v", item.ID, report)
	}

	got, err := fx.repo.GetItem(ctx, task.ID, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Name != "Renamed" {
		t.Fatalf("name not merged: %q", got.Name)
	}
	if got.Status != "completed" {
		t.Fatalf("status changed by omission: %q", got.Status)
	}
	if got.PlannedDate == nil || model.FormatDate(*got.PlannedDate) != "2025-01-01" {
		t.Fatalf("planned date changed by omission: %v", got.PlannedDate)
	}
	names, err := fx.repo.ItemTagNames(ctx, item.ID)
	if err != nil {
		t.Fatalf("tag names: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("tags changed by omission: %v", names)
	}
}

func TestPartialMergeReplacesTagsWhenPresent(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Items: &[]ItemPatch{{ID: int64Ptr(item.ID), TagsInput: &[]string{"z"}}},
	}, PartialMerge)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	names, err := fx.repo.ItemTagNames(ctx, item.ID)
	if err != nil {
		t.Fatalf("tag names: %v", err)
	}
	if len(names) != 1 || names[0] != "z" {
		t.Fatalf("expected tag set replaced with [z], got %v", names)
	}

	// An explicitly empty list clears the set; the tag rows stay behind.
	_, _, err = fx.engine.Reconcile(ctx, task, AggregatePatch{
		Items: &[]ItemPatch{{ID: int64Ptr(item.ID), TagsInput: &[]string{}}},
	}, PartialMerge)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	names, _ = fx.repo.ItemTagNames(ctx, item.ID)
	if len(names) != 0 {
		t.Fatalf("expected cleared tag set, got %v", names)
	}
	rows, err := fx.repo.ListTags(ctx, storage.TagListFilter{Owner: "alice"})
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("tag rows should never be garbage-collected, got %#v", rows)
	}
}

func TestPartialMergeCreatesUnmatchedItems(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	report, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Items: &[]ItemPatch{
			{ID: int64Ptr(item.ID), Name: strPtr("kept")},
			{Name: strPtr("no id")},
			{ID: int64Ptr(9999), Name: strPtr("unknown id")},
		},
	}, PartialMerge)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(report) != 3 {
		t.Fatalf("expected 3 report entries, got %d", len(report))
	}
	if report[0].Created || report[0].ID != item.ID {
		t.Fatalf("first entry should match existing item: %#v", report[0])
	}
	if !report[1].Created || !report[2].Created {
		t.Fatalf("unmatched payloads should create: %#v", report)
	}

	// The unknown id is not honored: the new row gets its own id.
	if report[2].ID == 9999 {
		t.Fatal("payload id must not be honored on create")
	}

	count, err := fx.repo.CountItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 items, got %d", count)
	}
}

func TestPartialMergeNeverDeletesByOmission(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, _ := seedTask(t, fx)

	empty := []ItemPatch{}
	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Name:  strPtr("Renamed task"),
		Items: &empty,
	}, PartialMerge)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	count, err := fx.repo.CountItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 1 {
		t.Fatalf("partial merge deleted items: %d remain", count)
	}
}

func TestFullReplacePrecondition(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Name:  strPtr("only name"),
		Items: &[]ItemPatch{{ID: int64Ptr(item.ID), Name: strPtr("should not apply")}},
	}, FullReplace)
	if err != ErrIncompleteAggregate {
		t.Fatalf("want ErrIncompleteAggregate, got %v", err)
	}

	got, err := fx.repo.GetItem(ctx, task.ID, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Name != "Build" {
		t.Fatalf("failed precondition must not mutate, item name is %q", got.Name)
	}
	agg, err := fx.repo.GetAggregate(ctx, "task", task.ID)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if agg.Name != "Demo" {
		t.Fatalf("failed precondition must not mutate, aggregate name is %q", agg.Name)
	}
}

func TestFullReplaceEmptyListDeletesAllItems(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, _ := seedTask(t, fx)

	empty := []ItemPatch{}
	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Name:        strPtr("Demo"),
		Description: strPtr("D"),
		Items:       &empty,
	}, FullReplace)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	count, err := fx.repo.CountItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected all items deleted, %d remain", count)
	}
}

func TestFullReplaceOmittedItemsKeepsExisting(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, _ := seedTask(t, fx)

	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Name:        strPtr("Demo v2"),
		Description: strPtr("D2"),
	}, FullReplace)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	count, err := fx.repo.CountItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 1 {
		t.Fatalf("omitted items key must keep items, %d remain", count)
	}
}

func TestReconcileRejectsInvalidStatusBeforeMutation(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	bad := model.Status("done")
	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Items: &[]ItemPatch{
			{ID: int64Ptr(item.ID), Name: strPtr("first")},
			{ID: int64Ptr(item.ID), Status: &bad},
		},
	}, PartialMerge)
	if err == nil {
		t.Fatal("expected invalid status error")
	}
	got, _ := fx.repo.GetItem(ctx, task.ID, item.ID)
	if got.Name != "Build" {
		t.Fatalf("validation failure mutated state: %q", got.Name)
	}
}

func TestClearPlannedDate(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	_, _, err := fx.engine.Reconcile(ctx, task, AggregatePatch{
		Items: &[]ItemPatch{{ID: int64Ptr(item.ID), PlannedDate: NullableDate{Set: true}}},
	}, PartialMerge)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, err := fx.repo.GetItem(ctx, task.ID, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.PlannedDate != nil {
		t.Fatalf("expected planned date cleared, got %v", got.PlannedDate)
	}
}

func TestInstantiateCopiesItemsWithoutStatusOrTags(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	planned, _ := model.ParseDate("2025-06-01")
	template, err := fx.engine.Create(ctx, model.KindTemplate, "alice", Draft{
		Name:        "Weekly",
		Description: "routine",
		Items: []ItemPatch{{
			Name:        strPtr("Review"),
			Status:      statusPtr(model.StatusCompleted),
			PlannedDate: NullableDate{Set: true, Date: &planned},
			TagsInput:   &[]string{"ops"},
		}},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	task, err := fx.engine.Instantiate(ctx, template, "bob")
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if task.Owner != "bob" {
		t.Fatalf("task owner = %q, want bob", task.Owner)
	}
	if task.TemplateID == nil || *task.TemplateID != template.ID {
		t.Fatalf("task template link = %v, want %d", task.TemplateID, template.ID)
	}

	items, err := fx.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: task.ID})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Review" {
		t.Fatalf("unexpected copied items: %#v", items)
	}
	if items[0].Status != string(model.StatusInProcess) {
		t.Fatalf("instantiated item status = %q, want process", items[0].Status)
	}
	names, _ := fx.repo.ItemTagNames(ctx, items[0].ID)
	if len(names) != 0 {
		t.Fatalf("instantiated item must not carry tags, got %v", names)
	}
}

func TestPromoteCopiesStatusAndTags(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()
	task, item := seedTask(t, fx)

	template, err := fx.engine.Promote(ctx, task)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if template.Kind != "template" || template.Owner != "alice" {
		t.Fatalf("unexpected template: %#v", template)
	}

	items, err := fx.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: template.ID})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].Status != item.Status {
		t.Fatalf("promotion should keep status: %#v", items)
	}
	names, _ := fx.repo.ItemTagNames(ctx, items[0].ID)
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Fatalf("promotion should keep tags, got %v", names)
	}
}

func TestInvalidatorCalledForTemplatesOnly(t *testing.T) {
	fx := setupEngine(t)
	ctx := context.Background()

	task, taskItem := seedTask(t, fx)
	if len(fx.inval.calls) != 0 {
		t.Fatalf("task writes must not invalidate, got %v", fx.inval.calls)
	}

	template, err := fx.engine.Create(ctx, model.KindTemplate, "alice", Draft{
		Name:  "Weekly",
		Items: []ItemPatch{{Name: strPtr("step")}},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if len(fx.inval.calls) != 1 || fx.inval.calls[0] != template.ID {
		t.Fatalf("template create should invalidate, calls %v", fx.inval.calls)
	}

	if _, _, err := fx.engine.Reconcile(ctx, template, AggregatePatch{Name: strPtr("W2")}, PartialMerge); err != nil {
		t.Fatalf("reconcile template: %v", err)
	}
	if len(fx.inval.calls) != 2 {
		t.Fatalf("template update should invalidate, calls %v", fx.inval.calls)
	}

	templateItems, err := fx.repo.ListItems(ctx, storage.ItemListFilter{AggregateID: template.ID})
	if err != nil || len(templateItems) != 1 {
		t.Fatalf("list template items: %v (%d)", err, len(templateItems))
	}
	if _, err := fx.engine.MergeItem(ctx, template, templateItems[0].ID, ItemPatch{Name: strPtr("step 2")}); err != nil {
		t.Fatalf("merge template item: %v", err)
	}
	if len(fx.inval.calls) != 3 {
		t.Fatalf("template item merge should invalidate, calls %v", fx.inval.calls)
	}

	if err := fx.engine.DeleteItem(ctx, template, templateItems[0].ID); err != nil {
		t.Fatalf("delete template item: %v", err)
	}
	if len(fx.inval.calls) != 4 {
		t.Fatalf("template item delete should invalidate, calls %v", fx.inval.calls)
	}

	if err := fx.engine.Delete(ctx, template); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	if len(fx.inval.calls) != 5 {
		t.Fatalf("template delete should invalidate, calls %v", fx.inval.calls)
	}

	if _, err := fx.engine.MergeItem(ctx, task, taskItem.ID, ItemPatch{Name: strPtr("still a task")}); err != nil {
		t.Fatalf("merge task item: %v", err)
	}
	if err := fx.engine.DeleteItem(ctx, task, taskItem.ID); err != nil {
		t.Fatalf("delete task item: %v", err)
	}
	if err := fx.engine.Delete(ctx, task); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if len(fx.inval.calls) != 5 {
		t.Fatalf("task writes must not invalidate, calls %v", fx.inval.calls)
	}
}

func TestReportJSONShape(t *testing.T) {
	report := Report{{ID: 7}, {ID: 12, Created: true}}
	out, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if string(out) != `[7,"New item 12"]` {
		t.Fatalf("unexpected report JSON: %s", out)
	}
}

func TestEngineClockInjection(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := setupEngine(t)
	fx.engine.now = func() time.Time { return fixed }

	task, err := fx.engine.Create(context.Background(), model.KindTask, "alice", Draft{Name: "Demo"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !task.CreatedAt.Equal(fixed) || !task.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps not taken from clock: %v %v", task.CreatedAt, task.UpdatedAt)
	}
}
