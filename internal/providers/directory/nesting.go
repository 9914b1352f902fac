package directory

import (
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// computeNesting sets NestingDepth on every group from the ParentGroups
// edges. Parents are matched by distinguished name, then by name. A depth
// already reported by the source is kept when it is larger. Membership
// cycles stop the walk.
func computeNesting(groups []models.GroupRecord) {
	index := make(map[string]int, 2*len(groups))
	for i, g := range groups {
		if g.DistinguishedName != "" {
			index[strings.ToLower(g.DistinguishedName)] = i
		}
		if g.Name != "" {
			if _, taken := index[strings.ToLower(g.Name)]; !taken {
				index[strings.ToLower(g.Name)] = i
			}
		}
	}

	children := make([][]int, len(groups))
	for i, g := range groups {
		for _, p := range g.ParentGroups {
			parent, ok := index[strings.ToLower(p)]
			if !ok {
				parent, ok = index[strings.ToLower(groupName(p))]
			}
			if ok && parent != i {
				children[parent] = append(children[parent], i)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(groups))
	depth := make([]int, len(groups))

	var walk func(i int) int
	walk = func(i int) int {
		switch state[i] {
		case done:
			return depth[i]
		case visiting:
			return 0
		}
		state[i] = visiting
		d := 0
		for _, c := range children[i] {
			d = max(d, walk(c)+1)
		}
		state[i] = done
		depth[i] = d
		return d
	}

	for i := range groups {
		if d := walk(i); d > groups[i].NestingDepth {
			groups[i].NestingDepth = d
		}
	}
}
