package locality

import (
	"fmt"
	"sort"
	"strings"
)

// SplitTags partitions the tags of the scope-level descendants of
// root into numParts groups of ceiling size. The group that reaches
// the end of the tag list takes the remainder; any groups after it
// are empty.
func SplitTags(root *Domain, scope Scope, numParts int) ([][]string, error) {
	if numParts < 1 {
		return nil, fmt.Errorf("locality: split into %d parts", numParts)
	}
	tags, err := ScopeDomains(root, scope)
	if err != nil {
		return nil, err
	}
	numDomains := len(tags)
	max := (numDomains + numParts - 1) / numParts
	groups := make([][]string, numParts)
	first := 0
	for g := 0; g < numParts; g++ {
		n := max
		if (g+1)*max > numDomains {
			n = numDomains - g*max
			if n < 0 {
				n = 0
			}
		}
		groups[g] = append([]string(nil), tags[first:first+n]...)
		first += n
	}
	return groups, nil
}

// Split partitions the scope-level descendants of root into numParts
// balanced groups and materializes each group in the tree. Grouping
// renumbers the ungrouped siblings, so the selected domains are
// resolved up front and re-addressed by their current tags before
// every grouping step.
func Split(root *Domain, scope Scope, numParts int) error {
	tagGroups, err := SplitTags(root, scope, numParts)
	if err != nil {
		return err
	}
	nodeGroups := make([][]*Domain, len(tagGroups))
	for g, tags := range tagGroups {
		for _, tag := range tags {
			d, err := DomainAt(root, tag)
			if err != nil {
				return err
			}
			nodeGroups[g] = append(nodeGroups[g], d)
		}
	}
	for _, nodes := range nodeGroups {
		if len(nodes) == 0 {
			continue
		}
		tags := make([]string, len(nodes))
		for i, d := range nodes {
			tags[i] = d.Tag
		}
		if err := Group(root, tags); err != nil {
			return err
		}
	}
	return nil
}

// Group gathers the domains named by tags under a new group domain.
// The group is created under the lowest common ancestor of the tags.
// When all tags are immediate children of the ancestor the in-place
// partition of GroupSubdomains is used; otherwise the selected
// subtrees are copied under the new group and pruned to the
// selection, leaving the original branches in place.
func Group(root *Domain, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	parentTag := lcaTag(tags)
	parent, err := DomainAt(root, parentTag)
	if err != nil {
		return err
	}

	parentParts := tagDepth(parent.Tag)
	immediate := true
	for _, tag := range tags {
		if tagDepth(tag) != parentParts+1 {
			immediate = false
			break
		}
	}
	if immediate {
		return GroupSubdomains(parent, tags)
	}

	// Indirect children: resolve the immediate child of the ancestor
	// on the path to each selected tag, then copy those subtrees
	// under the group and prune away unselected branches.
	seen := make(map[string]bool)
	var immediateTags []string
	for _, tag := range tags {
		it := tagPrefix(tag, parentParts+1)
		if !seen[it] {
			seen[it] = true
			immediateTags = append(immediateTags, it)
		}
	}
	sort.Strings(immediateTags)

	group := &Domain{
		Scope:    ScopeGroup,
		Level:    parent.Level + 1,
		RelIndex: len(parent.Children),
		Team:     parent.Team,
		Parent:   parent,
		NumNodes: parent.NumNodes,
	}
	group.Tag = ChildTag(parent.Tag, group.RelIndex)

	for _, it := range immediateTags {
		src, err := DomainAt(root, it)
		if err != nil {
			return err
		}
		cp := copyTree(src)
		cp.Parent = group
		selectSubdomains(cp, tags)
		group.Children = append(group.Children, cp)
	}
	for i, c := range group.Children {
		retag(c, ChildTag(group.Tag, i), group.Level+1, i)
	}
	refreshAggregates(group)
	parent.Children = append(parent.Children, group)
	return nil
}

// GroupSubdomains moves the named immediate children of parent into a
// new group domain appended as the parent's last child. Pre-existing
// group children stay in front with their tags unchanged; the
// remaining children are renumbered and retagged to their new
// positions. Returns ErrNotFound when a tag is not a child of parent.
func GroupSubdomains(parent *Domain, tags []string) error {
	chosenSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		chosenSet[t] = true
	}

	var groups, chosen, remaining []*Domain
	for _, child := range parent.Children {
		switch {
		case child.Scope == ScopeGroup:
			groups = append(groups, child)
		case chosenSet[child.Tag]:
			chosen = append(chosen, child)
		default:
			remaining = append(remaining, child)
		}
	}
	if len(chosen) != len(chosenSet) {
		return fmt.Errorf("%w: not all of %v are children of %q",
			ErrNotFound, tags, parent.Tag)
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].Tag < chosen[j].Tag })

	group := &Domain{
		Scope:    ScopeGroup,
		Level:    parent.Level + 1,
		RelIndex: len(groups) + len(remaining),
		Team:     parent.Team,
		Parent:   parent,
	}
	group.Tag = ChildTag(parent.Tag, group.RelIndex)
	group.Children = chosen
	for i, c := range chosen {
		c.Parent = group
		retag(c, ChildTag(group.Tag, i), group.Level+1, i)
	}
	refreshAggregates(group)

	parent.Children = parent.Children[:0]
	for i, g := range groups {
		g.RelIndex = i
		parent.Children = append(parent.Children, g)
	}
	for i, r := range remaining {
		idx := len(groups) + i
		retag(r, ChildTag(parent.Tag, idx), parent.Level+1, idx)
		parent.Children = append(parent.Children, r)
	}
	parent.Children = append(parent.Children, group)
	return nil
}

// selectSubdomains prunes d to the branches leading to the selected
// tags. A child survives when it is an ancestor of a selection or
// lies at or below one.
func selectSubdomains(d *Domain, tags []string) {
	kept := d.Children[:0]
	for _, c := range d.Children {
		if onSelectionPath(c.Tag, tags) {
			selectSubdomains(c, tags)
			kept = append(kept, c)
		}
	}
	d.Children = kept
	for i, c := range d.Children {
		c.RelIndex = i
	}
	refreshAggregates(d)
}

func onSelectionPath(tag string, tags []string) bool {
	for _, sel := range tags {
		if tag == sel || strings.HasPrefix(sel, tag+".") || strings.HasPrefix(tag, sel+".") {
			return true
		}
	}
	return false
}

// refreshAggregates recomputes the unit set and node count of a
// non-leaf domain from its children.
func refreshAggregates(d *Domain) {
	if d.IsLeaf() {
		return
	}
	d.Units = d.Units[:0]
	d.NumNodes = 0
	for _, c := range d.Children {
		d.Units = append(d.Units, c.Units...)
		d.NumNodes += c.NumNodes
	}
}

func tagDepth(tag string) int {
	if tag == RootTag || tag == "" {
		return 0
	}
	return strings.Count(tag, ".")
}

func tagPrefix(tag string, depth int) string {
	parts := strings.Split(strings.TrimPrefix(tag, "."), ".")
	if depth >= len(parts) {
		return tag
	}
	return "." + strings.Join(parts[:depth], ".")
}

func lcaTag(tags []string) string {
	parts := strings.Split(strings.TrimPrefix(tags[0], "."), ".")
	common := len(parts)
	for _, tag := range tags[1:] {
		p := strings.Split(strings.TrimPrefix(tag, "."), ".")
		n := 0
		for n < common && n < len(p) && p[n] == parts[n] {
			n++
		}
		common = n
	}
	// The ancestor must lie strictly above every selected domain.
	for _, tag := range tags {
		if tagDepth(tag) == common {
			common--
			break
		}
	}
	if common <= 0 {
		return RootTag
	}
	return "." + strings.Join(parts[:common], ".")
}
