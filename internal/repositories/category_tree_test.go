package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/catalog/internal/database/dbtest"
	"github.com/example/catalog/internal/errs"
	"github.com/example/catalog/internal/models"
)

func newTree(t *testing.T) (*CategoryTree, *gorm.DB) {
	db := dbtest.New(t)
	return NewCategoryTree(db), db
}

// insert adds a category and asserts the forest is still well formed.
func insert(t *testing.T, tree *CategoryTree, name string, parent *models.Category) *models.Category {
	t.Helper()
	var parentID *uuid.UUID
	if parent != nil {
		parentID = &parent.ID
	}
	c, err := tree.Insert(context.Background(), name, parentID)
	require.NoError(t, err)
	require.NoError(t, tree.Check(context.Background()))
	return c
}

func names(items []models.Category) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.Name
	}
	return out
}

func bounds(t *testing.T, tree *CategoryTree, id uuid.UUID) [3]int {
	t.Helper()
	c, err := tree.Get(context.Background(), id)
	require.NoError(t, err)
	return [3]int{c.TreeID, c.Lft, c.Rght}
}

func TestInsertOrdersSiblingsByName(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	electronics := insert(t, tree, "Electronics", nil)
	insert(t, tree, "Phones", electronics)
	insert(t, tree, "Laptops", electronics)

	got, err := tree.DescendantsOf(ctx, electronics.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Laptops", "Phones"}, names(got))

	root, err := tree.Get(ctx, electronics.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, root.Lft)
	assert.Equal(t, 6, root.Rght)
}

func TestInsertNestedBounds(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	a := insert(t, tree, "A", nil)
	b := insert(t, tree, "B", a)
	c := insert(t, tree, "C", b)
	d := insert(t, tree, "D", a)

	assert.Equal(t, [3]int{1, 1, 8}, bounds(t, tree, a.ID))
	assert.Equal(t, [3]int{1, 2, 5}, bounds(t, tree, b.ID))
	assert.Equal(t, [3]int{1, 3, 4}, bounds(t, tree, c.ID))
	assert.Equal(t, [3]int{1, 6, 7}, bounds(t, tree, d.ID))
	assert.Equal(t, 2, c.Level)

	all, err := tree.DescendantsOf(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D"}, names(all))
}

func TestRootsOrderedByName(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	insert(t, tree, "Toys", nil)
	insert(t, tree, "Books", nil)
	garden := insert(t, tree, "Garden", nil)
	insert(t, tree, "Hoses", garden)

	roots, err := tree.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Books", "Garden", "Toys"}, names(roots))
	for i, r := range roots {
		assert.Equal(t, i+1, r.TreeID)
	}
}

func TestInsertRejectsDuplicatesAndBadNames(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)
	root := insert(t, tree, "Electronics", nil)

	_, err := tree.Insert(ctx, "Electronics", &root.ID)
	var dup *errs.DuplicateNameError
	assert.ErrorAs(t, err, &dup)

	_, err = tree.Insert(ctx, "  ", nil)
	var invalid *errs.ValidationError
	assert.ErrorAs(t, err, &invalid)

	missing := uuid.New()
	_, err = tree.Insert(ctx, "Orphan", &missing)
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	require.NoError(t, tree.Check(ctx))
}

func TestAncestorsNearestFirst(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	a := insert(t, tree, "A", nil)
	b := insert(t, tree, "B", a)
	c := insert(t, tree, "C", b)

	got, err := tree.AncestorsOf(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names(got))

	got, err = tree.AncestorsOf(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	root, err := tree.RootOf(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, root.ID)
}

func TestDescendantsStopsEarly(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	a := insert(t, tree, "A", nil)
	insert(t, tree, "B", a)
	insert(t, tree, "C", a)

	var seen []string
	for c, err := range tree.Descendants(ctx, a.ID) {
		require.NoError(t, err)
		seen = append(seen, c.Name)
		break
	}
	assert.Equal(t, []string{"B"}, seen)

	// the cursor must be released for the next query to run
	_, err := tree.List(ctx)
	require.NoError(t, err)
}

func TestDescendantsOfUnknown(t *testing.T) {
	tree, _ := newTree(t)
	_, err := tree.DescendantsOf(context.Background(), uuid.New())
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDeleteWithChildrenLeavesTreeUnchanged(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	electronics := insert(t, tree, "Electronics", nil)
	insert(t, tree, "Phones", electronics)

	before, err := tree.List(ctx)
	require.NoError(t, err)

	for range 2 {
		err := tree.Delete(ctx, electronics.ID)
		var hasChildren *errs.HasChildrenError
		require.ErrorAs(t, err, &hasChildren)
		assert.EqualValues(t, 1, hasChildren.Children)
	}

	after, err := tree.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteClosesGaps(t *testing.T) {
	ctx := context.Background()
	tree, db := newTree(t)

	a := insert(t, tree, "A", nil)
	b := insert(t, tree, "B", a)
	c := insert(t, tree, "C", a)
	z := insert(t, tree, "Z", nil)

	brand := models.Brand{Name: "Acme"}
	require.NoError(t, db.Create(&brand).Error)
	product := models.Product{Name: "Widget", BrandID: brand.ID, CategoryID: &b.ID}
	require.NoError(t, db.Create(&product).Error)

	require.NoError(t, tree.Delete(ctx, b.ID))
	require.NoError(t, tree.Check(ctx))
	assert.Equal(t, [3]int{1, 2, 3}, bounds(t, tree, c.ID))

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Nil(t, reloaded.CategoryID)

	require.NoError(t, tree.Delete(ctx, c.ID))
	require.NoError(t, tree.Delete(ctx, a.ID))
	require.NoError(t, tree.Check(ctx))
	assert.Equal(t, [3]int{1, 1, 2}, bounds(t, tree, z.ID))

	err := tree.Delete(ctx, a.ID)
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMoveRejectsCycles(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	a := insert(t, tree, "A", nil)
	b := insert(t, tree, "B", a)
	c := insert(t, tree, "C", b)

	before, err := tree.List(ctx)
	require.NoError(t, err)

	for _, target := range []uuid.UUID{a.ID, b.ID, c.ID} {
		_, err := tree.Move(ctx, a.ID, &target)
		var cycle *errs.CycleError
		assert.ErrorAs(t, err, &cycle, "target %s", target)
	}
	_, err = tree.Move(ctx, b.ID, &c.ID)
	var cycle *errs.CycleError
	assert.ErrorAs(t, err, &cycle)

	after, err := tree.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMoveWithinTree(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	root := insert(t, tree, "Root", nil)
	a := insert(t, tree, "A", root)
	b := insert(t, tree, "B", root)
	insert(t, tree, "A1", a)

	moved, err := tree.Move(ctx, a.ID, &b.ID)
	require.NoError(t, err)
	require.NoError(t, tree.Check(ctx))
	assert.Equal(t, 2, moved.Level)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, b.ID, *moved.ParentID)

	all, err := tree.DescendantsOf(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "A1"}, names(all))
}

func TestMoveAcrossTreesAndToRoot(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	books := insert(t, tree, "Books", nil)
	fiction := insert(t, tree, "Fiction", books)
	insert(t, tree, "Fantasy", fiction)
	toys := insert(t, tree, "Toys", nil)

	_, err := tree.Move(ctx, fiction.ID, &toys.ID)
	require.NoError(t, err)
	require.NoError(t, tree.Check(ctx))

	got, err := tree.DescendantsOf(ctx, toys.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fiction", "Fantasy"}, names(got))
	assert.Equal(t, [3]int{1, 1, 2}, bounds(t, tree, books.ID))

	moved, err := tree.Move(ctx, fiction.ID, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Check(ctx))
	assert.True(t, moved.IsRoot())
	assert.Equal(t, 0, moved.Level)

	roots, err := tree.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Books", "Fiction", "Toys"}, names(roots))

	// a root moving under another tree closes the tree id gap
	_, err = tree.Move(ctx, books.ID, &toys.ID)
	require.NoError(t, err)
	require.NoError(t, tree.Check(ctx))
	roots, err = tree.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fiction", "Toys"}, names(roots))
}

func TestMoveToSameParentIsNoop(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	root := insert(t, tree, "Root", nil)
	a := insert(t, tree, "A", root)

	before := bounds(t, tree, a.ID)
	_, err := tree.Move(ctx, a.ID, &root.ID)
	require.NoError(t, err)
	assert.Equal(t, before, bounds(t, tree, a.ID))
}

func TestRenameKeepsBounds(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	root := insert(t, tree, "Root", nil)
	a := insert(t, tree, "A", root)
	insert(t, tree, "B", root)

	renamed, err := tree.Rename(ctx, a.ID, "Z")
	require.NoError(t, err)
	assert.Equal(t, "z", renamed.Slug)
	assert.Equal(t, [3]int{1, 2, 3}, bounds(t, tree, a.ID))
	require.NoError(t, tree.Check(ctx))

	_, err = tree.Rename(ctx, a.ID, "B")
	var dup *errs.DuplicateNameError
	assert.ErrorAs(t, err, &dup)
}

func TestCheckDetectsAndRebuildRepairs(t *testing.T) {
	ctx := context.Background()
	tree, db := newTree(t)

	root := insert(t, tree, "Root", nil)
	b := insert(t, tree, "B", root)
	insert(t, tree, "A", root)
	other := insert(t, tree, "Other", nil)

	require.NoError(t, db.Model(&models.Category{}).Where("id = ?", b.ID).
		UpdateColumns(map[string]interface{}{"lft": 7, "rght": 9}).Error)
	require.NoError(t, db.Model(&models.Category{}).Where("id = ?", other.ID).
		UpdateColumn("tree_id", 5).Error)
	assert.ErrorIs(t, tree.Check(ctx), ErrCorruptTree)

	require.NoError(t, tree.Rebuild(ctx))
	require.NoError(t, tree.Check(ctx))

	got, err := tree.DescendantsOf(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(got))
	assert.Equal(t, [3]int{1, 1, 2}, bounds(t, tree, other.ID))
	assert.Equal(t, 2, bounds(t, tree, root.ID)[0])
}

func TestChildren(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTree(t)

	root := insert(t, tree, "Root", nil)
	b := insert(t, tree, "B", root)
	insert(t, tree, "A", root)
	insert(t, tree, "B1", b)

	got, err := tree.Children(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names(got))

	_, err = tree.Children(ctx, uuid.New())
	var notFound *errs.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
