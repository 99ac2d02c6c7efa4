package locality

// UnitInfo is one unit's hardware location as exchanged at team
// creation.
type UnitInfo struct {
	Unit   int
	Host   string
	Module int
	NUMA   int
	Core   int
}

// BuildTree constructs the domain hierarchy
// global -> node -> module -> NUMA -> core from per-unit hardware
// info. Sibling order follows first appearance in infos, so every
// member building from the same exchanged slice produces an identical
// tree.
func BuildTree(team int, infos []UnitInfo) *Domain {
	root := &Domain{
		Tag:   RootTag,
		Scope: ScopeGlobal,
		Team:  team,
	}
	for _, info := range infos {
		root.Units = append(root.Units, info.Unit)
	}

	byHost := groupInfos(infos, func(i UnitInfo) string { return i.Host })
	root.NumNodes = len(byHost)
	for _, hostInfos := range byHost {
		node := appendChild(root, ScopeNode)
		node.Host = hostInfos[0].Host
		node.NumNodes = 1
		for _, info := range hostInfos {
			node.Units = append(node.Units, info.Unit)
		}

		byModule := groupInfos(hostInfos, func(i UnitInfo) int { return i.Module })
		for _, moduleInfos := range byModule {
			module := appendChild(node, ScopeModule)
			module.Host = node.Host
			module.NumNodes = 1
			for _, info := range moduleInfos {
				module.Units = append(module.Units, info.Unit)
			}

			byNUMA := groupInfos(moduleInfos, func(i UnitInfo) int { return i.NUMA })
			for _, numaInfos := range byNUMA {
				numa := appendChild(module, ScopeNUMA)
				numa.Host = node.Host
				numa.NumNodes = 1
				for _, info := range numaInfos {
					numa.Units = append(numa.Units, info.Unit)
					core := appendChild(numa, ScopeCore)
					core.Host = node.Host
					core.NumNodes = 1
					core.Units = []int{info.Unit}
				}
			}
		}
	}
	return root
}

func appendChild(parent *Domain, scope Scope) *Domain {
	child := &Domain{
		Scope:    scope,
		Level:    parent.Level + 1,
		RelIndex: len(parent.Children),
		Team:     parent.Team,
		Parent:   parent,
	}
	child.Tag = ChildTag(parent.Tag, child.RelIndex)
	parent.Children = append(parent.Children, child)
	return child
}

func groupInfos[K comparable](infos []UnitInfo, key func(UnitInfo) K) [][]UnitInfo {
	index := make(map[K]int)
	var groups [][]UnitInfo
	for _, info := range infos {
		k := key(info)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], info)
	}
	return groups
}
