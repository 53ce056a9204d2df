package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"pixelfetch/internal/shared/types"
)

// LoadIni loads the pixelfetch.ini behavior configuration file.
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	overrideFromEnv(&cfg.ProxyConf.ManualList, "PIXELFETCH_PROXY_LIST")
	overrideFromEnv(&cfg.SourceConf.APIBase, "PIXELFETCH_API_BASE")
	cfg.ApplyDefaults()
	return nil
}

// LoadAccounts loads the accounts.json data file.
func LoadAccounts(fileName string) ([]*types.Account, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		// A missing file means no accounts are configured, not an error.
		if os.IsNotExist(err) {
			return []*types.Account{}, nil
		}
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}

	var accounts []*types.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts file: %w", err)
	}
	for _, a := range accounts {
		if a.TotalQuota <= 0 {
			a.TotalQuota = types.DefaultAccountQuota
		}
		if a.RemainingQuota <= 0 {
			a.RemainingQuota = a.TotalQuota
		}
	}
	return accounts, nil
}

// SaveAccounts writes the account list back to accounts.json, keeping
// quota bookkeeping across restarts.
func SaveAccounts(fileName string, accounts []*types.Account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
