package policy

// ExpandGroups expands group references in a tool list to their constituent
// tools, deduplicating the result. Direct tool names pass through unchanged;
// unknown group references pass through as-is so a misspelled group never
// silently widens access.
func ExpandGroups(items []string) []string {
	result := []string{}
	seen := make(map[string]bool)

	for _, item := range items {
		if tools, ok := ToolGroups[item]; ok {
			for _, tool := range tools {
				if !seen[tool] {
					seen[tool] = true
					result = append(result, tool)
				}
			}
			continue
		}
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}

// GetProfilePolicy returns the policy for a named profile, or nil if the
// profile doesn't exist.
func GetProfilePolicy(name string) *Policy {
	p, ok := ProfileDefaults[Profile(name)]
	if !ok {
		return nil
	}
	cp := *p
	cp.Profile = Profile(name)
	return &cp
}

// ListGroups returns all available group names.
func ListGroups() []string {
	groups := make([]string, 0, len(ToolGroups))
	for name := range ToolGroups {
		groups = append(groups, name)
	}
	return groups
}

// IsGroup returns true if the name is a valid group reference.
func IsGroup(name string) bool {
	_, ok := ToolGroups[name]
	return ok
}

// GetGroupTools returns the tools in a group, or nil if the group doesn't
// exist. The returned slice is a copy.
func GetGroupTools(name string) []string {
	tools, ok := ToolGroups[name]
	if !ok {
		return nil
	}
	result := make([]string, len(tools))
	copy(result, tools)
	return result
}
