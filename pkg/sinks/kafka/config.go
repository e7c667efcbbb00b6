/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package kafka

import (
	"bytes"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/spf13/viper"
)

// Config locates the brokers and the topic to produce to.
type Config struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	// KeyAttribute names the attribute used as the message key, empty means no key
	KeyAttribute string `mapstructure:"keyAttribute"`

	// Sarama is a YAML document decoded into the producer configuration
	Sarama string `mapstructure:"sarama"`

	SASL *SASLConfig `mapstructure:"sasl"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka sink requires at least one broker")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka sink requires a topic")
	}
	return nil
}

// GetSaramaConfigFromYAMLString parse yaml string to sarama.config
func GetSaramaConfigFromYAMLString(yaml string) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if yaml != "" {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(yaml)); err != nil {
			return nil, err
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unable to decode into struct, %w", err)
		}
	}
	// required by the sync producer
	cfg.Producer.Return.Successes = true
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed validating sarama config, %w", err)
	}
	return cfg, nil
}

func (c Config) saramaConfig() (*sarama.Config, error) {
	cfg, err := GetSaramaConfigFromYAMLString(c.Sarama)
	if err != nil {
		return nil, err
	}
	if c.SASL != nil {
		if err := c.SASL.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
