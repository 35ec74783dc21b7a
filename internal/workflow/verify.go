package workflow

/**
 * Verify the structure of a workflow before compilation
 * @param {Workflow} stages - Stages in declaration order
 * @returns {error} *ValidationError for the first violation, nil when valid
 * @description
 * - Rejects empty stage names (ErrEmptyName)
 * - Rejects a stage name used twice (ErrDuplicateName)
 * - Rejects options whose default value type differs from the declared type (ErrOptionTypeMismatch)
 */
func Verify(stages Workflow) error {
	seen := make(map[string]struct{}, len(stages))
	for _, stage := range stages {
		if stage.Name == "" {
			return &ValidationError{Kind: ErrEmptyName}
		}
		if _, dup := seen[stage.Name]; dup {
			return &ValidationError{Kind: ErrDuplicateName, Stage: stage.Name}
		}
		seen[stage.Name] = struct{}{}

		for _, opt := range stage.Options {
			if kind, ok := OptionTypeOf(opt.Default); !ok || kind != opt.Type {
				return &ValidationError{Kind: ErrOptionTypeMismatch, Stage: stage.Name, Option: opt.Name}
			}
		}
	}
	return nil
}

// OptionTypeOf returns the option type matching the runtime type of v.
func OptionTypeOf(v any) (OptionType, bool) {
	switch v.(type) {
	case int, int32, int64:
		return OptionInt, true
	case float32, float64:
		return OptionFloat, true
	case string:
		return OptionString, true
	case bool:
		return OptionBool, true
	default:
		return "", false
	}
}
