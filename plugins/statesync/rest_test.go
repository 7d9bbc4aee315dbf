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

package statesync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
	"github.com/unrolled/render"
)

func TestStatusHandler(t *testing.T) {
	RegisterTestingT(t)
	registry := NewEngineRegistry()
	handler := statusGetHandler(registry, "neighsync")(render.New())
	Expect(StatusURL("neighsync")).To(Equal("/neighsync/status"))

	// not running
	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, StatusURL("neighsync"), nil))
	Expect(recorder.Code).To(Equal(http.StatusNotFound))
	errResp := errorString{}
	Expect(json.Unmarshal(recorder.Body.Bytes(), &errResp)).To(Succeed())
	Expect(errResp.Error).To(ContainSubstring("neighsync"))

	engine := NewEngine("neighsync", EngineConfig{}, EngineDeps{Log: logrus.DefaultLogger()})
	Expect(registry.Register(engine)).To(Succeed())

	recorder = httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, StatusURL("neighsync"), nil))
	Expect(recorder.Code).To(Equal(http.StatusOK))
	status := EngineStatus{}
	Expect(json.Unmarshal(recorder.Body.Bytes(), &status)).To(Succeed())
	Expect(status.Name).To(Equal("neighsync"))
	Expect(status.InitialSyncDone).To(BeFalse())
}

func TestRegisterStatusHandlerWithoutHTTP(t *testing.T) {
	RegisterTestingT(t)
	// must not panic without the REST plugin
	RegisterStatusHandler(logrus.DefaultLogger(), nil, NewEngineRegistry(), "portsync")
}
