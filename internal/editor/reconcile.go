package editor

// Reconcile merges the variables currently present in the active variant's
// text with the template's persisted variable map, producing the editable
// working set:
//
//  1. every name in textVars gets its saved value, or "" when unsaved;
//  2. saved entries with a non-empty value survive even when their name has
//     dropped out of the text (keeps values typed for another variant);
//  3. saved entries that are empty and absent from the text are dropped.
func Reconcile(textVars []string, saved map[string]string) map[string]string {
	working := make(map[string]string, len(textVars))

	inText := make(map[string]struct{}, len(textVars))
	for _, name := range textVars {
		inText[name] = struct{}{}
		working[name] = saved[name]
	}

	for name, value := range saved {
		if _, ok := inText[name]; ok {
			continue
		}
		if value != "" {
			working[name] = value
		}
	}

	return working
}

// PersistedVariables filters a working map down to the set that may be
// written to the template: only entries with a non-empty value.
func PersistedVariables(working map[string]string) map[string]string {
	persisted := make(map[string]string, len(working))
	for name, value := range working {
		if value != "" {
			persisted[name] = value
		}
	}
	return persisted
}
