package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/r3e-network/sfnc/domain/attrs"
	"github.com/r3e-network/sfnc/domain/compiler"
	"github.com/r3e-network/sfnc/domain/serializer"
	"github.com/r3e-network/sfnc/hostlang"
	cerr "github.com/r3e-network/sfnc/infrastructure/errors"
)

// compileRequest is the body POST /compile accepts: one host-language
// source file and enough metadata to lower it without deploying
// anything, for editor/CI feedback rather than a real stack rollout.
type compileRequest struct {
	Name          string              `json:"name" binding:"required"`
	Filename      string              `json:"filename" binding:"required"`
	Source        string              `json:"source" binding:"required"`
	Optional      []hostlang.OptParam `json:"optional,omitempty"`
	ReturnSchema  []string            `json:"return_schema,omitempty"`
	Express       bool                `json:"express,omitempty"`
	SkipEmptyPass bool                `json:"skip_empty_pass,omitempty"`
}

type compileResponse struct {
	Name         string               `json:"name"`
	Document     *serializer.Document `json:"document"`
	ReturnSchema []string             `json:"return_schema,omitempty"`
}

func (s *Server) handleCompile(c *gin.Context) {
	var req compileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "parsing"})

	a, err := attrs.Collect(req.Filename, req.Source, req.Optional, req.ReturnSchema)
	if err != nil {
		s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "failed", Error: err.Error()})
		writeCompileError(c, err)
		return
	}

	prog, err := hostlang.Parse(req.Filename, req.Source)
	if err != nil {
		s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "failed", Error: err.Error()})
		writeCompileError(c, err)
		return
	}
	if prog.Func == nil {
		err := cerr.NotSingleFunction(req.Filename)
		s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "failed", Error: err.Error()})
		writeCompileError(c, err)
		return
	}

	s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "lowering"})

	comp := compiler.New(s.symbols, compiler.Options{
		Express:               req.Express,
		SkipEmptyPass:         req.SkipEmptyPass,
		ReturnSchema:          req.ReturnSchema,
		DefaultMapConcurrency: s.defaultMapConcurrency,
	})

	result, err := comp.Compile(prog.Func, a)
	if err != nil {
		s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "failed", Error: err.Error()})
		writeCompileError(c, err)
		return
	}

	doc, err := serializer.Render(result.Graph)
	if err != nil {
		s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "failed", Error: err.Error()})
		writeCompileError(c, err)
		return
	}

	s.cache.put(&CompileResult{
		Name:         req.Name,
		Program:      prog,
		Document:     doc,
		ReturnSchema: result.ReturnSchema,
	})

	s.hub.broadcast(ProgressEvent{Machine: req.Name, Stage: "done"})

	c.JSON(http.StatusOK, compileResponse{Name: req.Name, Document: doc, ReturnSchema: result.ReturnSchema})
}

func (s *Server) handleGetMachine(c *gin.Context) {
	name := c.Param("name")
	r, ok := s.cache.get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown machine: " + name})
		return
	}
	c.JSON(http.StatusOK, compileResponse{Name: r.Name, Document: r.Document, ReturnSchema: r.ReturnSchema})
}

func (s *Server) handleGetMachineAST(c *gin.Context) {
	name := c.Param("name")
	r, ok := s.cache.get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown machine: " + name})
		return
	}
	c.JSON(http.StatusOK, r.Program)
}

// resolveCallbackRequest is the body POST /callbacks/:token accepts: an
// arbitrary JSON result handed back to whichever simulated/real
// execution is awaiting that token.
type resolveCallbackRequest struct {
	Result json.RawMessage `json:"result"`
}

func (s *Server) handleResolveCallback(c *gin.Context) {
	if s.tokens == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "callback token store not configured"})
		return
	}

	token := c.Param("token")
	var req resolveCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var result interface{}
	if len(req.Result) > 0 {
		if err := json.Unmarshal(req.Result, &result); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result: " + err.Error()})
			return
		}
	}

	if err := s.tokens.Resolve(c.Request.Context(), token, result); err != nil {
		writeCompileError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "status": "resolved"})
}

func (s *Server) handleStream(c *gin.Context) {
	if err := s.hub.serveWS(c.Writer, c.Request); err != nil {
		s.log.WithField("error", err.Error()).Warn("compile-progress stream closed")
	}
}

func writeCompileError(c *gin.Context, err error) {
	if ce := cerr.GetCompileError(err); ce != nil {
		c.JSON(ce.HTTPStatus, gin.H{"error": ce.Message, "code": ce.Code, "details": ce.Details})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
