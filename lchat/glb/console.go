package glb

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

func Infof(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func IsVerbose() bool {
	return viper.GetBool("verbose") || viper.GetBool("v2")
}

func VerbosityLevel() int {
	if !IsVerbose() {
		return 0
	}
	if viper.GetBool("v2") {
		return 2
	}
	return 1
}

func Verbosef(format string, args ...any) {
	if IsVerbose() {
		fmt.Printf(format+"\n", args...)
	}
}

func Fatalf(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

// AssertNoError exits with the error. Errors of the taxonomy are displayed with their kind
func AssertNoError(err error) {
	if err == nil {
		return
	}
	if kind := global.KindOf(err); kind != global.KindInternal {
		Fatalf("%s: %v", kind, err)
	}
	Fatalf("error: %v", err)
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		Fatalf(format, args...)
	}
}

func YesNoPrompt(label string, def bool, force ...bool) bool {
	if len(force) > 0 && force[0] {
		return def
	}
	choices := "Y/n"
	if !def {
		choices = "y/N"
	}

	r := bufio.NewReader(os.Stdin)
	var s string

	for {
		fmt.Printf("%s (%s) ", label, choices)
		s, _ = r.ReadString('\n')
		s = strings.TrimSpace(s)
		if s == "" {
			return def
		}
		s = strings.ToLower(s)
		if s == "y" || s == "yes" {
			return true
		}
		if s == "n" || s == "no" {
			return false
		}
	}
}

// PrintYAML displays the value in YAML. Used with '--yaml' flag
func PrintYAML(v any) {
	data, err := yaml.Marshal(v)
	AssertNoError(err)
	fmt.Print(string(data))
}

func OutputYAML() bool {
	return viper.GetBool("yaml")
}
