package webapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/seantiz/showcase/internal/engine"
	"github.com/seantiz/showcase/internal/model"
)

type engineKey struct{}

// engineFromContext returns the engine resolved by withEngine.
func engineFromContext(ctx context.Context) *engine.ProcessEngine {
	e, _ := ctx.Value(engineKey{}).(*engine.ProcessEngine)
	return e
}

// withEngine resolves the {engine} URL parameter, answering 404 for an
// unknown engine.
func withEngine(engines *Engines) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := chi.URLParam(r, "engine")
			e, ok := engines.Engine(name)
			if !ok {
				writeError(w, http.StatusNotFound, "process engine "+name+" not found")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), engineKey{}, e)))
		})
	}
}

// variablesRequest is the body of requests carrying typed variables.
type variablesRequest struct {
	BusinessKey   string          `json:"businessKey"`
	Variables     model.Variables `json:"variables"`
	Modifications model.Variables `json:"modifications"`
}

// EngineAPI is the REST API over the engine services, served below
// /api/engine.
type EngineAPI struct {
	engines *Engines
	logger  *slog.Logger
	schema  *jsonschema.Schema
	router  chi.Router
}

// NewEngineAPI creates the engine REST API.
func NewEngineAPI(engines *Engines, logger *slog.Logger) (*EngineAPI, error) {
	schema, err := compileSchema("typed-variables.schema.json")
	if err != nil {
		return nil, err
	}
	a := &EngineAPI{engines: engines, logger: logger, schema: schema}

	r := chi.NewRouter()
	r.Get("/engine", a.handleEngines)
	r.Route("/engine/{engine}", func(r chi.Router) {
		r.Use(withEngine(engines))

		r.Get("/process-definition", a.handleListDefinitions)
		r.Get("/process-definition/{id}", a.handleGetDefinition)
		r.Get("/process-definition/key/{key}", a.handleGetDefinitionByKey)
		r.Post("/process-definition/key/{key}/start", a.handleStartByKey)
		r.Post("/process-definition/{id}/start", a.handleStartByID)

		r.Get("/process-instance", a.handleListInstances)
		r.Get("/process-instance/count", a.handleCountInstances)
		r.Get("/process-instance/{id}", a.handleGetInstance)
		r.Delete("/process-instance/{id}", a.handleDeleteInstance)
		r.Get("/process-instance/{id}/variables", a.handleGetVariables)
		r.Post("/process-instance/{id}/variables", a.handleModifyVariables)

		r.Get("/task", a.handleListTasks)
		r.Get("/task/{id}", a.handleGetTask)
		r.Post("/task/{id}/claim", a.handleClaimTask)
		r.Post("/task/{id}/unclaim", a.handleUnclaimTask)
		r.Post("/task/{id}/complete", a.handleCompleteTask)

		r.Get("/job", a.handleListJobs)
		r.Post("/job/{id}/execute", a.handleExecuteJob)
		r.Put("/job/{id}/retries", a.handleSetJobRetries)

		r.Get("/history/activity-instance", a.handleActivityInstances)
		r.Get("/history/process-instance", a.handleFinishedInstances)

		r.Get("/deployment", a.handleListDeployments)
		r.Post("/deployment", a.handleCreateDeployment)
		r.Post("/deployment/create", a.handleCreateDeployment)

		r.Get("/table-count", a.handleTableCount)
	})
	a.router = r
	return a, nil
}

func (a *EngineAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// readVariables reads and validates a typed variables body.
func (a *EngineAPI) readVariables(w http.ResponseWriter, r *http.Request) (variablesRequest, error) {
	var req variablesRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return req, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(body) == 0 {
		return req, nil
	}
	if err := validateJSON(a.schema, body); err != nil {
		return req, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := decodeBytes(body, &req); err != nil {
		return req, err
	}
	return req, nil
}

func (a *EngineAPI) handleEngines(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]string, 0)
	for _, name := range a.engines.Names() {
		out = append(out, map[string]string{"name": name})
	}
	writeJSON(w, http.StatusOK, out)
}

// Repository.

func (a *EngineAPI) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := engineFromContext(r.Context()).RepositoryService().ProcessDefinitions(r.Context())
	if err != nil {
		writeServiceError(w, a.logger, "list process definitions", err)
		return
	}
	if key := r.URL.Query().Get("key"); key != "" {
		filtered := defs[:0]
		for _, d := range defs {
			if d.Key == key {
				filtered = append(filtered, d)
			}
		}
		defs = filtered
	}
	writeJSON(w, http.StatusOK, nonNil(defs))
}

func (a *EngineAPI) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := engineFromContext(r.Context()).RepositoryService().ProcessDefinition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, a.logger, "get process definition", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (a *EngineAPI) handleGetDefinitionByKey(w http.ResponseWriter, r *http.Request) {
	def, err := engineFromContext(r.Context()).RepositoryService().LatestProcessDefinition(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeServiceError(w, a.logger, "get process definition", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (a *EngineAPI) handleStartByKey(w http.ResponseWriter, r *http.Request) {
	req, err := a.readVariables(w, r)
	if err != nil {
		writeServiceError(w, a.logger, "start process instance", err)
		return
	}
	inst, err := engineFromContext(r.Context()).RuntimeService().
		StartProcessInstanceByKey(r.Context(), chi.URLParam(r, "key"), req.BusinessKey, req.Variables)
	if err != nil {
		writeServiceError(w, a.logger, "start process instance", err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (a *EngineAPI) handleStartByID(w http.ResponseWriter, r *http.Request) {
	req, err := a.readVariables(w, r)
	if err != nil {
		writeServiceError(w, a.logger, "start process instance", err)
		return
	}
	inst, err := engineFromContext(r.Context()).RuntimeService().
		StartProcessInstanceByID(r.Context(), chi.URLParam(r, "id"), req.BusinessKey, req.Variables)
	if err != nil {
		writeServiceError(w, a.logger, "start process instance", err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (a *EngineAPI) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	deps, err := engineFromContext(r.Context()).RepositoryService().Deployments(r.Context())
	if err != nil {
		writeServiceError(w, a.logger, "list deployments", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deps))
}

// handleCreateDeployment deploys the raw BPMN document in the request body.
func (a *EngineAPI) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil || len(content) == 0 {
		writeError(w, http.StatusBadRequest, "request body must contain a BPMN document")
		return
	}

	q := r.URL.Query()
	resource := q.Get("resource")
	if resource == "" {
		resource = "process.bpmn"
	}
	b := engine.DeploymentBuilder{
		Name:               q.Get("deployment-name"),
		Source:             q.Get("deployment-source"),
		DuplicateFiltering: parseBoolQuery(r, "enable-duplicate-filtering", false),
	}
	if b.Name == "" {
		b.Name = resource
	}
	b.AddResource(resource, content)

	result, err := engineFromContext(r.Context()).RepositoryService().Deploy(r.Context(), b)
	if err != nil {
		writeServiceError(w, a.logger, "deploy", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Runtime.

func instanceQuery(r *http.Request) engine.ProcessInstanceQuery {
	q := r.URL.Query()
	return engine.ProcessInstanceQuery{
		DefinitionID:  q.Get("processDefinitionId"),
		DefinitionKey: q.Get("processDefinitionKey"),
		BusinessKey:   q.Get("businessKey"),
		ActivityID:    q.Get("activityId"),
		State:         q.Get("state"),
		Limit:         parseIntQuery(r, "maxResults", 0),
		Offset:        parseIntQuery(r, "firstResult", 0),
	}
}

func (a *EngineAPI) handleListInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := engineFromContext(r.Context()).RuntimeService().ProcessInstances(r.Context(), instanceQuery(r))
	if err != nil {
		writeServiceError(w, a.logger, "list process instances", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(insts))
}

func (a *EngineAPI) handleCountInstances(w http.ResponseWriter, r *http.Request) {
	q := instanceQuery(r)
	q.Limit, q.Offset = 0, 0
	n, err := engineFromContext(r.Context()).RuntimeService().CountProcessInstances(r.Context(), q)
	if err != nil {
		writeServiceError(w, a.logger, "count process instances", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (a *EngineAPI) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := engineFromContext(r.Context()).RuntimeService().ProcessInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, a.logger, "get process instance", err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (a *EngineAPI) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("deleteReason")
	if reason == "" {
		reason = "deleted via REST"
	}
	if err := engineFromContext(r.Context()).RuntimeService().DeleteProcessInstance(r.Context(), chi.URLParam(r, "id"), reason); err != nil {
		writeServiceError(w, a.logger, "delete process instance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *EngineAPI) handleGetVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := engineFromContext(r.Context()).RuntimeService().Variables(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, a.logger, "get variables", err)
		return
	}
	if vars == nil {
		vars = model.Variables{}
	}
	writeJSON(w, http.StatusOK, vars)
}

func (a *EngineAPI) handleModifyVariables(w http.ResponseWriter, r *http.Request) {
	req, err := a.readVariables(w, r)
	if err != nil {
		writeServiceError(w, a.logger, "modify variables", err)
		return
	}
	if err := engineFromContext(r.Context()).RuntimeService().SetVariables(r.Context(), chi.URLParam(r, "id"), req.Modifications); err != nil {
		writeServiceError(w, a.logger, "modify variables", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tasks.

func (a *EngineAPI) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := engineFromContext(r.Context()).TaskService().Tasks(r.Context(), engine.TaskQuery{
		InstanceID:     q.Get("processInstanceId"),
		ActivityID:     q.Get("taskDefinitionKey"),
		Assignee:       q.Get("assignee"),
		CandidateGroup: q.Get("candidateGroup"),
		Limit:          parseIntQuery(r, "maxResults", 0),
		Offset:         parseIntQuery(r, "firstResult", 0),
	})
	if err != nil {
		writeServiceError(w, a.logger, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (a *EngineAPI) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := engineFromContext(r.Context()).TaskService().Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, a.logger, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleClaimTask assigns a task to the userId of the body, or to the
// authenticated user when the body names none.
func (a *EngineAPI) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, a.logger, "claim task", err)
		return
	}
	if req.UserID == "" {
		if u, ok := UserFromContext(r.Context()); ok {
			req.UserID = u.ID
		}
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := engineFromContext(r.Context()).TaskService().Claim(r.Context(), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeServiceError(w, a.logger, "claim task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *EngineAPI) handleUnclaimTask(w http.ResponseWriter, r *http.Request) {
	if err := engineFromContext(r.Context()).TaskService().Claim(r.Context(), chi.URLParam(r, "id"), ""); err != nil {
		writeServiceError(w, a.logger, "unclaim task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *EngineAPI) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	req, err := a.readVariables(w, r)
	if err != nil {
		writeServiceError(w, a.logger, "complete task", err)
		return
	}
	if err := engineFromContext(r.Context()).TaskService().Complete(r.Context(), chi.URLParam(r, "id"), req.Variables); err != nil {
		writeServiceError(w, a.logger, "complete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Jobs.

func (a *EngineAPI) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := engineFromContext(r.Context()).ManagementService().Jobs(r.Context(), engine.JobQuery{
		InstanceID:    r.URL.Query().Get("processInstanceId"),
		OnlyIncidents: parseBoolQuery(r, "noRetriesLeft", false),
		Limit:         parseIntQuery(r, "maxResults", 0),
		Offset:        parseIntQuery(r, "firstResult", 0),
	})
	if err != nil {
		writeServiceError(w, a.logger, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(jobs))
}

func (a *EngineAPI) handleExecuteJob(w http.ResponseWriter, r *http.Request) {
	if err := engineFromContext(r.Context()).ManagementService().ExecuteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, a.logger, "execute job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *EngineAPI) handleSetJobRetries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Retries *int `json:"retries"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, a.logger, "set job retries", err)
		return
	}
	if req.Retries == nil {
		writeError(w, http.StatusBadRequest, "retries is required")
		return
	}
	if err := engineFromContext(r.Context()).ManagementService().SetJobRetries(r.Context(), chi.URLParam(r, "id"), *req.Retries); err != nil {
		writeServiceError(w, a.logger, "set job retries", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *EngineAPI) handleTableCount(w http.ResponseWriter, r *http.Request) {
	counts, err := engineFromContext(r.Context()).ManagementService().TableCount(r.Context())
	if err != nil {
		writeServiceError(w, a.logger, "table count", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// History.

func (a *EngineAPI) handleActivityInstances(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("processInstanceId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "processInstanceId is required")
		return
	}
	acts, err := engineFromContext(r.Context()).HistoryService().ActivityInstances(r.Context(), id)
	if err != nil {
		writeServiceError(w, a.logger, "list activity instances", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(acts))
}

func (a *EngineAPI) handleFinishedInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := engineFromContext(r.Context()).HistoryService().FinishedProcessInstances(r.Context())
	if err != nil {
		writeServiceError(w, a.logger, "list finished process instances", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(insts))
}

// nonNil turns a nil slice into an empty one so it encodes as [].
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
