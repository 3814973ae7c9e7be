package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sroepkeee/orderhub-notify/pkg/apikey"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "orderhubctl",
	Short: "OrderHub notification queue CLI",
	Long:  `Operator tooling for the OrderHub outbound notification service.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.orderhubctl.yaml)")

	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key for the notifier",
	Long: `Prints a new API key and its hash. Configure the hash on the notifier
(NOTIFY_API_KEY_HASH) and the key on callers (api_key in this CLI's config).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, hash, err := apikey.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("key:  %s\nhash: %s\n", key, hash)
		return nil
	},
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".orderhubctl")
	}

	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func apiURL() string {
	url := viper.GetString("notifier_url")
	if url == "" {
		url = "http://localhost:8090"
	}
	return url
}

// apiRequest calls the notifier, attaching the configured API key.
func apiRequest(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, apiURL()+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := viper.GetString("api_key"); key != "" {
		req.Header.Set(apikey.Header, key)
	}
	return http.DefaultClient.Do(req)
}
