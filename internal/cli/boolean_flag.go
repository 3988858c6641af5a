package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	toggleFlagTypeName        = "bool"
	toggleTrueLiteral         = "true"
	toggleAcceptedValues      = "true, false, yes, no, on, off, 1, 0"
	toggleInvalidValueMessage = "invalid boolean value %q for --%s; accepted values: %s"
	flagPrefix                = "--"
	flagValueSeparator        = "="
	endOfFlagsMarker          = "--"
)

var toggleLiterals = map[string]bool{
	"true":  true,
	"t":     true,
	"1":     true,
	"yes":   true,
	"y":     true,
	"on":    true,
	"false": false,
	"f":     false,
	"0":     false,
	"no":    false,
	"n":     false,
	"off":   false,
}

func parseToggleLiteral(input string) (bool, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return true, true
	}
	value, known := toggleLiterals[normalized]
	return value, known
}

// toggleValue is a boolean flag that also accepts yes/no and on/off,
// either as --flag=value or as a separate argument.
type toggleValue struct {
	target *bool
	name   string
}

func (value *toggleValue) Set(input string) error {
	parsed, known := parseToggleLiteral(input)
	if !known {
		return fmt.Errorf(toggleInvalidValueMessage, input, value.name, toggleAcceptedValues)
	}
	*value.target = parsed
	return nil
}

func (value *toggleValue) String() string {
	if value == nil || value.target == nil {
		return strconv.FormatBool(false)
	}
	return strconv.FormatBool(*value.target)
}

func (value *toggleValue) Type() string {
	return toggleFlagTypeName
}

// registerToggleFlag registers name on flagSet. A bare --name sets target to true.
func registerToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, defaultValue bool, usage string) {
	*target = defaultValue
	flagSet.Var(&toggleValue{target: target, name: name}, name, usage)
	registered := flagSet.Lookup(name)
	registered.DefValue = strconv.FormatBool(defaultValue)
	registered.NoOptDefVal = toggleTrueLiteral
}

// normalizeToggleArguments rewrites "--name value" into "--name=value" for
// toggle flags of command and its subcommands when value is a boolean literal.
// Arguments after "--" are left alone.
func normalizeToggleArguments(command *cobra.Command, arguments []string) []string {
	toggleNames := map[string]struct{}{}
	collectToggleNames(command, toggleNames)
	if len(toggleNames) == 0 {
		return arguments
	}
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		current := arguments[index]
		if current == endOfFlagsMarker {
			normalized = append(normalized, arguments[index:]...)
			break
		}
		name, isLongFlag := strings.CutPrefix(current, flagPrefix)
		if !isLongFlag || strings.Contains(name, flagValueSeparator) || index+1 >= len(arguments) {
			normalized = append(normalized, current)
			continue
		}
		if _, isToggle := toggleNames[name]; !isToggle {
			normalized = append(normalized, current)
			continue
		}
		next := arguments[index+1]
		if _, known := toggleLiterals[strings.ToLower(strings.TrimSpace(next))]; !known {
			normalized = append(normalized, current)
			continue
		}
		normalized = append(normalized, flagPrefix+name+flagValueSeparator+next)
		index++
	}
	return normalized
}

func collectToggleNames(command *cobra.Command, target map[string]struct{}) {
	visit := func(flag *pflag.Flag) {
		if flag.Value.Type() == toggleFlagTypeName {
			target[flag.Name] = struct{}{}
		}
	}
	command.PersistentFlags().VisitAll(visit)
	command.Flags().VisitAll(visit)
	for _, child := range command.Commands() {
		collectToggleNames(child, target)
	}
}
