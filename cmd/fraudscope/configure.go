package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard (with OS keychain support)",
	Long: `Walk through FraudScope configuration step-by-step.

This will configure:
1. LLM provider and API key (stored in OS keychain by default)
2. Model selection
3. Run mode default (mock, demo, live)
4. Live-mode cost budgets`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	fmt.Println("🔧 FraudScope Configuration Wizard")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	homeDir, _ := os.UserHomeDir()
	configPath := filepath.Join(homeDir, ".fraudscope", "config.yaml")
	loadedCfg, err := config.Load(configPath)
	if err != nil {
		loadedCfg = config.Default()
	}

	km := config.NewKeyringManager()
	keychainAvailable := km.IsAvailable()
	if !keychainAvailable {
		fmt.Println("⚠️  OS keychain not available (headless system or Linux without libsecret)")
		fmt.Println("   The API key will be stored in the config file instead.")
		fmt.Println()
	}

	// Step 1: provider
	fmt.Println("Step 1/4: LLM provider")
	fmt.Printf("Provider (openai, gemini) [%s]: ", loadedCfg.API.Provider)
	if provider := readLine(reader); provider != "" {
		if provider != "openai" && provider != "gemini" {
			return fmt.Errorf("unknown provider %q", provider)
		}
		loadedCfg.API.Provider = provider
	}
	fmt.Println()

	// Step 2: API key
	fmt.Println("Step 2/4: API key")
	sourceInfo := km.GetAPIKeySource(loadedCfg)
	keepExisting := false
	if sourceInfo.Source != "none" {
		fmt.Printf("Current key source: %s\n", sourceInfo.Source)
		fmt.Print("Keep existing key? (Y/n): ")
		response := readLine(reader)
		keepExisting = response == "" || strings.EqualFold(response, "y")
	}
	if !keepExisting {
		apiKey, err := readSecret("Enter your API key (input hidden): ")
		if err != nil {
			return err
		}
		if apiKey == "" {
			fmt.Println("No key entered, skipping.")
		} else if keychainAvailable {
			saveErr := km.SaveAPIKey(apiKey)
			if loadedCfg.API.Provider == "gemini" {
				saveErr = km.SaveGeminiKey(apiKey)
			}
			if saveErr != nil {
				fmt.Printf("⚠️  Keychain save failed (%v), storing in config file\n", saveErr)
				storeKeyInConfig(loadedCfg, apiKey)
			} else {
				fmt.Println("✅ API key saved to OS keychain")
				loadedCfg.API.UseKeychain = true
			}
		} else {
			storeKeyInConfig(loadedCfg, apiKey)
		}
	}
	fmt.Println()

	// Step 3: model and default mode
	fmt.Println("Step 3/4: Model and default mode")
	model := loadedCfg.API.OpenAIModel
	if loadedCfg.API.Provider == "gemini" {
		model = loadedCfg.API.GeminiModel
	}
	fmt.Printf("Model [%s]: ", model)
	if entered := readLine(reader); entered != "" {
		if loadedCfg.API.Provider == "gemini" {
			loadedCfg.API.GeminiModel = entered
		} else {
			loadedCfg.API.OpenAIModel = entered
		}
	}
	fmt.Printf("Default run mode (mock, demo, live) [%s]: ", loadedCfg.Mode)
	if entered := readLine(reader); entered != "" {
		mode, err := config.ParseRunMode(entered)
		if err != nil {
			return err
		}
		loadedCfg.Mode = mode
	}
	fmt.Println()

	// Step 4: budgets
	fmt.Println("Step 4/4: Live-mode budgets")
	fmt.Printf("Per-investigation cost limit USD [%.2f]: ", loadedCfg.Guard.InvestigationCostLimitUSD)
	if entered := readLine(reader); entered != "" {
		amount, err := strconv.ParseFloat(entered, 64)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		loadedCfg.Guard.InvestigationCostLimitUSD = amount
	}
	fmt.Printf("Session cost limit USD [%.2f]: ", loadedCfg.Guard.SessionCostLimitUSD)
	if entered := readLine(reader); entered != "" {
		amount, err := strconv.ParseFloat(entered, 64)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		loadedCfg.Guard.SessionCostLimitUSD = amount
	}
	fmt.Println()

	if err := loadedCfg.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("✅ Configuration saved to %s\n", configPath)
	return nil
}

func storeKeyInConfig(c *config.Config, apiKey string) {
	if c.API.Provider == "gemini" {
		c.API.GeminiKey = apiKey
	} else {
		c.API.OpenAIKey = apiKey
	}
	c.API.UseKeychain = false
	fmt.Println("⚠️  API key stored in config file (plaintext)")
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// readSecret reads without echo when stdin is a terminal, falling back
// to a plain read when it is not (pipes, CI)
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return readLine(bufio.NewReader(os.Stdin)), nil
}
