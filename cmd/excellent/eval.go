package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	excellent "github.com/excellent-lang/excellent"
)

// evalCmd evaluates a single template against a JSON context file
var evalCmd = &cobra.Command{
	Use:   "eval [template]",
	Short: "Evaluate a template",
	Long: `Evaluates a template with embedded expressions against a JSON context of
the form {"vars": {"name": "Joe"}, "tz": "Africa/Kigali", "day_first": true}.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)

		contextPath, _ := cmd.Flags().GetString("context")
		urlEncode, _ := cmd.Flags().GetBool("url-encode")
		partial, _ := cmd.Flags().GetBool("partial")

		data := []byte(`{"vars": {}}`)
		if contextPath != "" {
			var err error
			if data, err = os.ReadFile(contextPath); err != nil {
				return fmt.Errorf("reading context: %w", err)
			}
		}

		context, err := excellent.ContextFromJSON(data)
		if err != nil {
			return err
		}

		// the context's own top-level variables may be referenced directly
		var topLevels []string
		for key := range gjson.GetBytes(data, "vars").Map() {
			topLevels = append(topLevels, key)
		}

		strategy := excellent.ResolveComplete
		if partial {
			strategy = excellent.ResolveAvailable
		}

		evaluator := excellent.NewEvaluator(excellent.WithAllowedTopLevels(topLevels...))
		evaluated := evaluator.EvaluateTemplate(args[0], context, urlEncode, strategy)

		for _, evalErr := range evaluated.Errors {
			logger.Warn("template error", "error", evalErr)
		}
		fmt.Println(evaluated.Output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringP("context", "c", "", "Path to a JSON context file")
	evalCmd.Flags().Bool("url-encode", false, "URL-encode substituted values")
	evalCmd.Flags().Bool("partial", false, "Leave unresolvable references in place")
}
