package glb

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const DefaultProfileName = "lchat"

var envKeyReplacer = strings.NewReplacer(".", "_")

// ReadInConfig loads '.env' (if present) into the environment and reads the profile.
// Environment variables override profile values, e.g. LEDGER_ENDPOINT for 'ledger.endpoint'
func ReadInConfig() {
	if FileExists(".env") {
		AssertNoError(godotenv.Load())
	}
	configName := viper.GetString("config")
	if configName == "" {
		configName = DefaultProfileName
	}
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	viper.SetConfigName(configName)
	viper.SetConfigFile("./" + configName + ".yaml")

	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv() // read-in environment variables that match

	_ = viper.ReadInConfig()
	Verbosef("using profile: %s", viper.ConfigFileUsed())
}

func BypassYesNoPrompt() bool {
	return viper.GetBool("force")
}

func FileExists(name string) bool {
	_, err := os.Stat(name)
	return !os.IsNotExist(err)
}

func FileMustNotExist(name string) {
	_, err := os.Stat(name)
	if err == nil {
		Fatalf("'%s' already exists", name)
	} else {
		if !os.IsNotExist(err) {
			AssertNoError(err)
		}
	}
}
