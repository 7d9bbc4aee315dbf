// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package servicelabel provides a mock of the cn-infra service label plugin.
package servicelabel

const defaultAllAgentsPrefix = "/vnf-agent/"

// MockServiceLabel returns a fixed agent label.
type MockServiceLabel struct {
	agentLabel      string
	allAgentsPrefix string
}

// NewMockServiceLabel returns a mock labelling the agent with <label>.
func NewMockServiceLabel(label string) *MockServiceLabel {
	return &MockServiceLabel{agentLabel: label, allAgentsPrefix: defaultAllAgentsPrefix}
}

// SetAllAgentsPrefix changes the prefix shared by all agents.
func (msl *MockServiceLabel) SetAllAgentsPrefix(prefix string) {
	msl.allAgentsPrefix = prefix
}

// GetAgentLabel returns the label of this agent.
func (msl *MockServiceLabel) GetAgentLabel() string {
	return msl.agentLabel
}

// GetAgentPrefix returns the key prefix of this agent.
func (msl *MockServiceLabel) GetAgentPrefix() string {
	return msl.GetDifferentAgentPrefix(msl.agentLabel)
}

// GetDifferentAgentPrefix returns the key prefix of the agent labelled
// as <microserviceLabel>.
func (msl *MockServiceLabel) GetDifferentAgentPrefix(microserviceLabel string) string {
	return msl.allAgentsPrefix + microserviceLabel + "/"
}

// GetAllAgentsPrefix returns the part of the key prefix common to all agents.
func (msl *MockServiceLabel) GetAllAgentsPrefix() string {
	return msl.allAgentsPrefix
}
