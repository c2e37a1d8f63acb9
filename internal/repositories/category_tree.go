package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/catalog/internal/errs"
	"github.com/example/catalog/internal/logger"
	"github.com/example/catalog/internal/models"
)

// MaxNameLength bounds category, brand and product names.
const MaxNameLength = 100

// scratchTree holds a subtree while it is being moved. Real trees are
// numbered from 1.
const scratchTree = 0

// ErrCorruptTree is wrapped by Check when the stored bounds are
// inconsistent.
var ErrCorruptTree = errors.New("category tree is corrupt")

// CategoryTree stores the category forest as a nested set: every node has
// lft/rght bounds that enclose the bounds of its descendants, and each
// tree of the forest has its own tree_id. Bounds within a tree are the
// consecutive integers 1..2n.
//
// Siblings are kept in name order: a node is inserted (or moved) in front
// of the first sibling whose name sorts after its own. Roots are ordered
// the same way through their tree_id.
type CategoryTree struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewCategoryTree constructs CategoryTree.
func NewCategoryTree(db *gorm.DB) *CategoryTree {
	return &CategoryTree{db: db, log: logger.Component("category_tree")}
}

// WithTx returns a store bound to tx. Mutations then run in a savepoint of
// the caller's transaction.
func (t *CategoryTree) WithTx(tx *gorm.DB) *CategoryTree {
	return &CategoryTree{db: tx, log: t.log}
}

// mutate runs fn in a transaction holding the tree lock. Every bound shift
// touches many rows, so no writer may read bounds while another one is
// rewriting them.
func (t *CategoryTree) mutate(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTree(tx); err != nil {
			return fmt.Errorf("lock category tree: %w", err)
		}
		return fn(tx)
	})
}

func lockTree(tx *gorm.DB) error {
	switch tx.Dialector.Name() {
	case "postgres":
		// Conflicts with itself and with row writers, not with plain reads.
		return tx.Exec("LOCK TABLE categories IN SHARE ROW EXCLUSIVE MODE").Error
	default:
		// SQLite allows a single writer and runs on one connection.
		return nil
	}
}

// Insert creates a category under parentID, or a new root when parentID is
// nil.
func (t *CategoryTree) Insert(ctx context.Context, name string, parentID *uuid.UUID) (*models.Category, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	var node models.Category
	err = t.mutate(ctx, func(tx *gorm.DB) error {
		if err := ensureUniqueCategoryName(tx, name, uuid.Nil); err != nil {
			return err
		}

		node = models.Category{Name: name}
		if parentID == nil {
			slot, err := rootSlot(tx, name)
			if err != nil {
				return err
			}
			if err := shiftTrees(tx, slot, 1); err != nil {
				return err
			}
			node.TreeID, node.Lft, node.Rght, node.Level = slot, 1, 2, 0
		} else {
			parent, err := getCategory(tx, *parentID)
			if err != nil {
				return err
			}
			slot, err := childSlot(tx, parent, name)
			if err != nil {
				return err
			}
			if err := shiftBounds(tx, parent.TreeID, slot, 2); err != nil {
				return err
			}
			node.ParentID = &parent.ID
			node.TreeID, node.Lft, node.Rght, node.Level = parent.TreeID, slot, slot+1, parent.Level+1
		}

		if err := tx.Omit(clause.Associations).Create(&node).Error; err != nil {
			return translateNameError(err, "category", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.log.WithFields(logrus.Fields{
		"category": node.Name,
		"tree_id":  node.TreeID,
		"lft":      node.Lft,
	}).Debug("category inserted")
	return &node, nil
}

// Rename changes a category's name. Bounds are left alone, so siblings
// keep the order they were inserted in.
func (t *CategoryTree) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Category, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	var node *models.Category
	err = t.mutate(ctx, func(tx *gorm.DB) error {
		var err error
		node, err = getCategory(tx, id)
		if err != nil {
			return err
		}
		if node.Name == name {
			return nil
		}
		if err := ensureUniqueCategoryName(tx, name, node.ID); err != nil {
			return err
		}

		now := time.Now()
		if err := tx.Model(node).UpdateColumns(map[string]interface{}{
			"name":       name,
			"slug":       models.Slugify(name),
			"updated_at": now,
		}).Error; err != nil {
			return translateNameError(err, "category", name)
		}
		node.Name, node.Slug, node.UpdatedAt = name, models.Slugify(name), now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Move re-parents the subtree rooted at id. A nil newParentID turns it
// into a root. Moving under the node itself or one of its descendants
// fails with CycleError.
func (t *CategoryTree) Move(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (*models.Category, error) {
	var moved *models.Category
	err := t.mutate(ctx, func(tx *gorm.DB) error {
		node, err := getCategory(tx, id)
		if err != nil {
			return err
		}

		if newParentID != nil {
			parent, err := getCategory(tx, *newParentID)
			if err != nil {
				return err
			}
			if parent.ID == node.ID || node.Contains(parent) {
				return &errs.CycleError{Node: node.Name, Parent: parent.Name}
			}
		}

		if sameParent(node.ParentID, newParentID) {
			moved = node
			return nil
		}

		if err := detach(tx, node); err != nil {
			return err
		}
		if newParentID == nil {
			err = attachAsRoot(tx, node)
		} else {
			// bounds and tree ids may have shifted while detaching
			parent, perr := getCategory(tx, *newParentID)
			if perr != nil {
				return perr
			}
			err = attachUnder(tx, node, parent)
		}
		if err != nil {
			return err
		}

		moved, err = getCategory(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	t.log.WithFields(logrus.Fields{
		"category": moved.Name,
		"tree_id":  moved.TreeID,
		"lft":      moved.Lft,
	}).Debug("category moved")
	return moved, nil
}

// Delete removes a childless category. Products referencing it lose
// their category.
func (t *CategoryTree) Delete(ctx context.Context, id uuid.UUID) error {
	var node *models.Category
	err := t.mutate(ctx, func(tx *gorm.DB) error {
		var err error
		node, err = getCategory(tx, id)
		if err != nil {
			return err
		}

		var children int64
		if err := tx.Model(&models.Category{}).Where("parent_id = ?", node.ID).Count(&children).Error; err != nil {
			return err
		}
		if children > 0 {
			return &errs.HasChildrenError{Name: node.Name, Children: children}
		}

		if err := tx.Model(&models.Product{}).Where("category_id = ?", node.ID).
			UpdateColumn("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Category{}, "id = ?", node.ID).Error; err != nil {
			return err
		}

		if node.IsRoot() {
			return shiftTrees(tx, node.TreeID+1, -1)
		}
		return shiftBounds(tx, node.TreeID, node.Rght+1, -node.Width())
	})
	if err != nil {
		return err
	}

	t.log.WithField("category", node.Name).Debug("category deleted")
	return nil
}

// Get loads a category by id.
func (t *CategoryTree) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return getCategory(t.db.WithContext(ctx), id)
}

// FindByName loads a category by its exact name.
func (t *CategoryTree) FindByName(ctx context.Context, name string) (*models.Category, error) {
	var c models.Category
	if err := t.db.WithContext(ctx).First(&c, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("category", name)
		}
		return nil, err
	}
	return &c, nil
}

// List returns the whole forest in pre-order, tree by tree.
func (t *CategoryTree) List(ctx context.Context) ([]models.Category, error) {
	var items []models.Category
	if err := t.db.WithContext(ctx).Order("tree_id").Order("lft").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Roots returns the top-level categories in name order.
func (t *CategoryTree) Roots(ctx context.Context) ([]models.Category, error) {
	var items []models.Category
	if err := t.db.WithContext(ctx).Where("parent_id IS NULL").Order("tree_id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Children returns the direct children of id in sibling order.
func (t *CategoryTree) Children(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	db := t.db.WithContext(ctx)
	if _, err := getCategory(db, id); err != nil {
		return nil, err
	}

	var items []models.Category
	if err := db.Where("parent_id = ?", id).Order("lft").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// RootOf returns the root of the tree id belongs to.
func (t *CategoryTree) RootOf(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	db := t.db.WithContext(ctx)
	node, err := getCategory(db, id)
	if err != nil {
		return nil, err
	}
	if node.IsRoot() {
		return node, nil
	}

	var root models.Category
	if err := db.First(&root, "tree_id = ? AND lft = 1", node.TreeID).Error; err != nil {
		return nil, err
	}
	return &root, nil
}

// Descendants streams the subtree below id in pre-order. The sequence
// holds a database cursor until iteration stops, so callers must not
// issue other queries on a single-connection pool while ranging over it.
func (t *CategoryTree) Descendants(ctx context.Context, id uuid.UUID) iter.Seq2[models.Category, error] {
	return func(yield func(models.Category, error) bool) {
		node, err := t.Get(ctx, id)
		if err != nil {
			yield(models.Category{}, err)
			return
		}
		q := t.db.WithContext(ctx).Model(&models.Category{}).
			Where("tree_id = ? AND lft > ? AND rght < ?", node.TreeID, node.Lft, node.Rght).
			Order("lft")
		t.stream(q, yield)
	}
}

// Ancestors streams the ancestors of id, nearest first.
func (t *CategoryTree) Ancestors(ctx context.Context, id uuid.UUID) iter.Seq2[models.Category, error] {
	return func(yield func(models.Category, error) bool) {
		node, err := t.Get(ctx, id)
		if err != nil {
			yield(models.Category{}, err)
			return
		}
		q := t.db.WithContext(ctx).Model(&models.Category{}).
			Where("tree_id = ? AND lft < ? AND rght > ?", node.TreeID, node.Lft, node.Rght).
			Order("lft DESC")
		t.stream(q, yield)
	}
}

// DescendantsOf collects Descendants.
func (t *CategoryTree) DescendantsOf(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	return collect(t.Descendants(ctx, id))
}

// AncestorsOf collects Ancestors.
func (t *CategoryTree) AncestorsOf(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	return collect(t.Ancestors(ctx, id))
}

func (t *CategoryTree) stream(q *gorm.DB, yield func(models.Category, error) bool) {
	rows, err := q.Rows()
	if err != nil {
		yield(models.Category{}, err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Category
		if err := t.db.ScanRows(rows, &c); err != nil {
			yield(models.Category{}, err)
			return
		}
		if !yield(c, nil) {
			return
		}
	}
	if err := rows.Err(); err != nil {
		yield(models.Category{}, err)
	}
}

func collect(seq iter.Seq2[models.Category, error]) ([]models.Category, error) {
	items := []models.Category{}
	for c, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

// Check verifies the nested-set invariants of the whole forest: tree ids
// are 1..n, each tree has one root at lft 1, bounds are exactly 1..2n,
// and every node sits directly inside its parent's interval.
func (t *CategoryTree) Check(ctx context.Context) error {
	nodes, err := t.List(ctx)
	if err != nil {
		return err
	}

	byTree := map[int][]models.Category{}
	var treeIDs []int
	for _, n := range nodes {
		if _, ok := byTree[n.TreeID]; !ok {
			treeIDs = append(treeIDs, n.TreeID)
		}
		byTree[n.TreeID] = append(byTree[n.TreeID], n)
	}

	for i, id := range treeIDs {
		if id != i+1 {
			return fmt.Errorf("%w: tree ids are not contiguous (found %d at position %d)", ErrCorruptTree, id, i+1)
		}
		if err := checkTree(byTree[id]); err != nil {
			return fmt.Errorf("%w: tree %d: %v", ErrCorruptTree, id, err)
		}
	}
	return nil
}

// checkTree expects nodes of one tree ordered by lft.
func checkTree(nodes []models.Category) error {
	size := len(nodes)
	seen := make(map[int]bool, 2*size)
	var stack []models.Category

	for i, n := range nodes {
		if n.Lft >= n.Rght {
			return fmt.Errorf("%q has lft %d >= rght %d", n.Name, n.Lft, n.Rght)
		}
		for _, b := range []int{n.Lft, n.Rght} {
			if b < 1 || b > 2*size || seen[b] {
				return fmt.Errorf("%q has bound %d outside 1..%d or shared", n.Name, b, 2*size)
			}
			seen[b] = true
		}

		for len(stack) > 0 && stack[len(stack)-1].Rght < n.Lft {
			stack = stack[:len(stack)-1]
		}

		if i == 0 {
			if n.Lft != 1 || n.Rght != 2*size || !n.IsRoot() || n.Level != 0 {
				return fmt.Errorf("root %q must span 1..%d at level 0 without a parent", n.Name, 2*size)
			}
		} else {
			if len(stack) == 0 {
				return fmt.Errorf("%q lies outside the root interval", n.Name)
			}
			top := stack[len(stack)-1]
			if n.Rght > top.Rght {
				return fmt.Errorf("%q overlaps %q", n.Name, top.Name)
			}
			if n.ParentID == nil || *n.ParentID != top.ID {
				return fmt.Errorf("%q is stored inside %q but is not its child", n.Name, top.Name)
			}
			if n.Level != top.Level+1 {
				return fmt.Errorf("%q has level %d, parent level %d", n.Name, n.Level, top.Level)
			}
		}
		stack = append(stack, n)
	}
	return nil
}

// Rebuild recomputes every bound, level and tree id from the parent links
// alone, ordering siblings and roots by name.
func (t *CategoryTree) Rebuild(ctx context.Context) error {
	return t.mutate(ctx, func(tx *gorm.DB) error {
		var nodes []models.Category
		if err := tx.Find(&nodes).Error; err != nil {
			return err
		}

		children := map[uuid.UUID][]*models.Category{}
		var roots []*models.Category
		for i := range nodes {
			n := &nodes[i]
			if n.ParentID == nil {
				roots = append(roots, n)
			} else {
				children[*n.ParentID] = append(children[*n.ParentID], n)
			}
		}
		byName := func(s []*models.Category) {
			sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
		}
		byName(roots)
		for _, s := range children {
			byName(s)
		}

		visited := 0
		var walk func(n *models.Category, treeID, level, next int) int
		walk = func(n *models.Category, treeID, level, next int) int {
			visited++
			n.TreeID, n.Level, n.Lft = treeID, level, next
			next++
			for _, c := range children[n.ID] {
				next = walk(c, treeID, level+1, next)
			}
			n.Rght = next
			return next + 1
		}
		for i, r := range roots {
			walk(r, i+1, 0, 1)
		}
		if visited != len(nodes) {
			return fmt.Errorf("%w: %d categories are unreachable from any root", ErrCorruptTree, len(nodes)-visited)
		}

		for _, n := range nodes {
			if err := tx.Model(&models.Category{}).Where("id = ?", n.ID).UpdateColumns(map[string]interface{}{
				"tree_id": n.TreeID,
				"lft":     n.Lft,
				"rght":    n.Rght,
				"level":   n.Level,
			}).Error; err != nil {
				return err
			}
		}

		t.log.WithField("categories", len(nodes)).Info("category tree rebuilt")
		return nil
	})
}

// NormalizeName trims name and enforces the length limits shared by all
// named catalog records.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.Invalid("name", "required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", errs.Invalid("name", fmt.Sprintf("max=%d", MaxNameLength))
	}
	return name, nil
}

func getCategory(tx *gorm.DB, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	if err := tx.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("category", id.String())
		}
		return nil, err
	}
	return &c, nil
}

func ensureUniqueCategoryName(tx *gorm.DB, name string, except uuid.UUID) error {
	q := tx.Model(&models.Category{}).Where("name = ?", name)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &errs.DuplicateNameError{Resource: "category", Name: name}
	}
	return nil
}

// rootSlot is the tree id a new root called name takes: that of the first
// root sorting after it, or one past the last tree.
func rootSlot(tx *gorm.DB, name string) (int, error) {
	var roots []models.Category
	if err := tx.Where("parent_id IS NULL AND tree_id > ?", scratchTree).
		Order("tree_id").Find(&roots).Error; err != nil {
		return 0, err
	}
	for _, r := range roots {
		if r.Name > name {
			return r.TreeID, nil
		}
	}
	if len(roots) == 0 {
		return 1, nil
	}
	return roots[len(roots)-1].TreeID + 1, nil
}

// childSlot is the lft a new child called name takes under parent: that
// of the first child sorting after it, or the parent's rght.
func childSlot(tx *gorm.DB, parent *models.Category, name string) (int, error) {
	var children []models.Category
	if err := tx.Where("parent_id = ? AND tree_id = ?", parent.ID, parent.TreeID).
		Order("lft").Find(&children).Error; err != nil {
		return 0, err
	}
	for _, c := range children {
		if c.Name > name {
			return c.Lft, nil
		}
	}
	return parent.Rght, nil
}

// shiftBounds adds delta to every bound >= from in the tree.
func shiftBounds(tx *gorm.DB, treeID, from, delta int) error {
	if err := tx.Model(&models.Category{}).
		Where("tree_id = ? AND lft >= ?", treeID, from).
		UpdateColumn("lft", gorm.Expr("lft + ?", delta)).Error; err != nil {
		return err
	}
	return tx.Model(&models.Category{}).
		Where("tree_id = ? AND rght >= ?", treeID, from).
		UpdateColumn("rght", gorm.Expr("rght + ?", delta)).Error
}

// shiftTrees adds delta to every tree id >= from.
func shiftTrees(tx *gorm.DB, from, delta int) error {
	return tx.Model(&models.Category{}).
		Where("tree_id >= ?", from).
		UpdateColumn("tree_id", gorm.Expr("tree_id + ?", delta)).Error
}

// detach lifts node's subtree into the scratch tree, rebased to lft 1 and
// level 0, and closes the gap it leaves behind.
func detach(tx *gorm.DB, node *models.Category) error {
	if err := tx.Model(&models.Category{}).
		Where("tree_id = ? AND lft >= ? AND rght <= ?", node.TreeID, node.Lft, node.Rght).
		UpdateColumns(map[string]interface{}{
			"tree_id": scratchTree,
			"lft":     gorm.Expr("lft - ?", node.Lft-1),
			"rght":    gorm.Expr("rght - ?", node.Lft-1),
			"level":   gorm.Expr("level - ?", node.Level),
		}).Error; err != nil {
		return err
	}

	if node.IsRoot() {
		return shiftTrees(tx, node.TreeID+1, -1)
	}
	return shiftBounds(tx, node.TreeID, node.Rght+1, -node.Width())
}

func attachAsRoot(tx *gorm.DB, node *models.Category) error {
	slot, err := rootSlot(tx, node.Name)
	if err != nil {
		return err
	}
	if err := shiftTrees(tx, slot, 1); err != nil {
		return err
	}
	if err := tx.Model(&models.Category{}).Where("tree_id = ?", scratchTree).
		UpdateColumn("tree_id", slot).Error; err != nil {
		return err
	}
	return tx.Model(&models.Category{}).Where("id = ?", node.ID).
		UpdateColumn("parent_id", nil).Error
}

func attachUnder(tx *gorm.DB, node, parent *models.Category) error {
	slot, err := childSlot(tx, parent, node.Name)
	if err != nil {
		return err
	}
	if err := shiftBounds(tx, parent.TreeID, slot, node.Width()); err != nil {
		return err
	}
	if err := tx.Model(&models.Category{}).Where("tree_id = ?", scratchTree).
		UpdateColumns(map[string]interface{}{
			"tree_id": parent.TreeID,
			"lft":     gorm.Expr("lft + ?", slot-1),
			"rght":    gorm.Expr("rght + ?", slot-1),
			"level":   gorm.Expr("level + ?", parent.Level+1),
		}).Error; err != nil {
		return err
	}
	return tx.Model(&models.Category{}).Where("id = ?", node.ID).
		UpdateColumn("parent_id", parent.ID).Error
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func translateNameError(err error, resource, name string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &errs.DuplicateNameError{Resource: resource, Name: name}
	}
	return err
}
