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
	"net/http"

	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/unrolled/render"
)

// errorString wraps string representation of an error that, unlike the original
// error, can be marshalled.
type errorString struct {
	Error string
}

// StatusURL returns the REST URL of the status of the given synchronizer.
func StatusURL(name string) string {
	return "/" + name + "/status"
}

// RegisterStatusHandler registers the REST API exposing the status of the
// engine <name> found in <registry>.
func RegisterStatusHandler(log logging.Logger, handlers rest.HTTPHandlers, registry *EngineRegistry, name string) {
	if handlers == nil {
		log.Warn("No http handler provided, skipping registration of synchronizer REST handlers")
		return
	}
	handlers.RegisterHTTPHandler(StatusURL(name), statusGetHandler(registry, name), "GET")
}

// statusGetHandler returns the last published status of the engine.
func statusGetHandler(registry *EngineRegistry, name string) func(formatter *render.Render) http.HandlerFunc {
	return func(formatter *render.Render) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			engine, found := registry.Lookup(name)
			if !found {
				formatter.JSON(w, http.StatusNotFound, errorString{"synchronizer '" + name + "' is not running"})
				return
			}
			formatter.JSON(w, http.StatusOK, engine.Status())
		}
	}
}
