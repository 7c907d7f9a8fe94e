/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"fmt"
	"os"
	"path/filepath"

	"bubble-ledger-go/internal/models"

	"gopkg.in/yaml.v2"
)

// CategoryConfig is the default pool setup for one giveaway category.
type CategoryConfig struct {
	Category         models.Category `yaml:"category"`
	AmountPerAccount int64           `yaml:"amount_per_account"`
	Active           bool            `yaml:"active"`
}

type CategoriesConfig struct {
	Categories []CategoryConfig `yaml:"categories"`
}

func LoadCategoryConfig(categoriesFile string) ([]CategoryConfig, error) {
	var categoriesPath string
	if filepath.IsAbs(categoriesFile) {
		categoriesPath = categoriesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		categoriesPath = filepath.Join(wd, categoriesFile)
	}

	data, err := os.ReadFile(categoriesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", categoriesFile, err)
	}

	var config CategoriesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", categoriesFile, err)
	}

	seen := make(map[models.Category]bool, len(config.Categories))
	for i, category := range config.Categories {
		if !category.Category.Valid() {
			return nil, fmt.Errorf("category at index %d has unknown name %q", i, category.Category)
		}
		if category.AmountPerAccount <= 0 {
			return nil, fmt.Errorf("category %s must have a positive amount_per_account", category.Category)
		}
		if seen[category.Category] {
			return nil, fmt.Errorf("category %s listed more than once", category.Category)
		}
		seen[category.Category] = true
	}

	return config.Categories, nil
}
