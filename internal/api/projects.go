// Copyright 2025 the MetaMCP authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"

	"github.com/metatool-ai/metamcp/internal/httputil"
	"github.com/metatool-ai/metamcp/internal/store"
)

// requireOwnProject rejects path uuids outside the caller's project.
// Foreign uuids read as not found so existence doesn't leak.
func (r *Router) requireOwnProject(w http.ResponseWriter, req *http.Request) bool {
	if req.PathValue("uuid") != projectUUID(req) {
		writeServiceError(w, r.logger, store.ErrProjectNotFound)
		return false
	}
	return true
}

// resolveOwnProfile loads the path profile and checks that it belongs to
// the caller's project.
func (r *Router) resolveOwnProfile(w http.ResponseWriter, req *http.Request) (*store.Profile, bool) {
	profile, err := r.services.Store.GetProfile(req.Context(), req.PathValue("uuid"))
	if err == nil && profile.ProjectUUID != projectUUID(req) {
		err = store.ErrProfileNotFound
	}
	if err != nil {
		writeServiceError(w, r.logger, err)
		return nil, false
	}
	return profile, true
}

// handleListProjects handles GET /v1/projects. The listing is scoped to
// the caller's own project.
func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request) {
	project, err := r.services.Store.GetProject(req.Context(), projectUUID(req))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, []*store.Project{project})
}

// createProjectResponse carries the created tenant together with its first
// API key; without the key the new project would be unreachable.
type createProjectResponse struct {
	Project *store.Project `json:"project"`
	APIKey  *store.APIKey  `json:"api_key"`
}

// handleCreateProject handles POST /v1/projects.
func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := r.services.Store.CreateProject(req.Context(), body.Name)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	key, err := r.services.Store.GetFirstAPIKey(req.Context(), project.UUID)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createProjectResponse{Project: project, APIKey: key})
}

// handleGetProject handles GET /v1/projects/{uuid}.
func (r *Router) handleGetProject(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	project, err := r.services.Store.GetProject(req.Context(), req.PathValue("uuid"))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, project)
}

// handleRenameProject handles PUT /v1/projects/{uuid}.
func (r *Router) handleRenameProject(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := r.services.Store.UpdateProjectName(req.Context(), req.PathValue("uuid"), body.Name)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, project)
}

// handleDeleteProject handles DELETE /v1/projects/{uuid}.
func (r *Router) handleDeleteProject(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	if err := r.services.Store.DeleteProject(req.Context(), req.PathValue("uuid")); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetActiveProfile handles PUT /v1/projects/{uuid}/active-profile.
func (r *Router) handleSetActiveProfile(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	var body struct {
		ProfileUUID string `json:"profile_uuid"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.services.Store.SetActiveProfile(req.Context(), req.PathValue("uuid"), body.ProfileUUID); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"active_profile_uuid": body.ProfileUUID})
}

// handleListProfiles handles GET /v1/projects/{uuid}/profiles.
func (r *Router) handleListProfiles(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	profiles, err := r.services.Store.ListProfiles(req.Context(), req.PathValue("uuid"))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if profiles == nil {
		profiles = []*store.Profile{}
	}
	httputil.WriteJSON(w, http.StatusOK, profiles)
}

// handleCreateProfile handles POST /v1/projects/{uuid}/profiles.
func (r *Router) handleCreateProfile(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := r.services.Store.CreateProfile(req.Context(), req.PathValue("uuid"), body.Name)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, profile)
}

// handleRenameProfile handles PUT /v1/profiles/{uuid}.
func (r *Router) handleRenameProfile(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.resolveOwnProfile(w, req); !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := r.services.Store.UpdateProfileName(req.Context(), req.PathValue("uuid"), body.Name)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// handleSetProfileCapabilities handles PUT /v1/profiles/{uuid}/capabilities.
func (r *Router) handleSetProfileCapabilities(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.resolveOwnProfile(w, req); !ok {
		return
	}
	var body struct {
		EnabledCapabilities []store.ProfileCapability `json:"enabled_capabilities"`
	}
	if err := httputil.DecodeJSON(req, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, c := range body.EnabledCapabilities {
		if c != store.CapabilityToolsManagement && c != store.CapabilityToolLogs {
			httputil.WriteError(w, http.StatusBadRequest, "invalid capability: "+string(c))
			return
		}
	}

	profile, err := r.services.Store.UpdateProfileCapabilities(req.Context(), req.PathValue("uuid"), body.EnabledCapabilities)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// handleDeleteProfile handles DELETE /v1/profiles/{uuid}.
func (r *Router) handleDeleteProfile(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.resolveOwnProfile(w, req); !ok {
		return
	}
	if err := r.services.Store.DeleteProfile(req.Context(), req.PathValue("uuid")); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAPIKeys handles GET /v1/projects/{uuid}/api-keys.
func (r *Router) handleListAPIKeys(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	keys, err := r.services.Store.ListAPIKeys(req.Context(), req.PathValue("uuid"))
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	if keys == nil {
		keys = []*store.APIKey{}
	}
	httputil.WriteJSON(w, http.StatusOK, keys)
}

// handleCreateAPIKey handles POST /v1/projects/{uuid}/api-keys.
func (r *Router) handleCreateAPIKey(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	// The body is optional; a bare POST mints an unnamed key.
	_ = httputil.DecodeJSON(req, &body)

	key, err := r.services.Store.CreateAPIKey(req.Context(), req.PathValue("uuid"), body.Name)
	if err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, key)
}

// handleDeleteAPIKey handles DELETE /v1/projects/{uuid}/api-keys/{keyUuid}.
func (r *Router) handleDeleteAPIKey(w http.ResponseWriter, req *http.Request) {
	if !r.requireOwnProject(w, req) {
		return
	}
	if err := r.services.Store.DeleteAPIKey(req.Context(), req.PathValue("uuid"), req.PathValue("keyUuid")); err != nil {
		writeServiceError(w, r.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
