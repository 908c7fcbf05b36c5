package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"wsb.com/powledger/internals/chain"
	"wsb.com/powledger/internals/miner"
)

// Router exposes a Chain over HTTP: transaction intake, block reads and the
// operator controls.
type Router struct {
	engine *gin.Engine
	chain  *chain.Chain
	log    *logrus.Entry
}

type TransactionRequest struct {
	Sender   string   `json:"sender" binding:"required"`
	Receiver string   `json:"receiver" binding:"required"`
	Amount   *float64 `json:"amount" binding:"required"`
}

type DifficultyRequest struct {
	Difficulty *uint32 `json:"difficulty" binding:"required"`
}

type RewardRequest struct {
	Reward *float64 `json:"reward" binding:"required"`
}

type InfoResponse struct {
	Height       int     `json:"height"`
	PreviousHash string  `json:"previous_hash"`
	Difficulty   uint32  `json:"difficulty"`
	BlockReward  float64 `json:"block_reward"`
	MinerAddress string  `json:"miner_address"`
	Pending      int     `json:"pending"`
}

func NewRouter(c *chain.Chain, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Router{
		engine: gin.New(),
		chain:  c,
		log:    log,
	}
	r.engine.Use(gin.Recovery())
	r.engine.Use(r.logger())
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.engine.GET("/info", r.info)

	blocks := r.engine.Group("/blocks")
	{
		blocks.GET("", r.listBlocks)
		blocks.GET("/:height", r.getBlock)
	}

	txs := r.engine.Group("/transactions")
	{
		txs.GET("", r.listPending)
		txs.POST("", r.submitTransaction)
	}

	r.engine.POST("/mine", r.mine)
	r.engine.PUT("/difficulty", r.setDifficulty)
	r.engine.PUT("/reward", r.setReward)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("API request")
	}
}

// GET /info
func (r *Router) info(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{
		Height:       r.chain.Len() - 1,
		PreviousHash: r.chain.LastBlockHash(),
		Difficulty:   r.chain.Difficulty(),
		BlockReward:  r.chain.Reward(),
		MinerAddress: r.chain.MinerAddress(),
		Pending:      len(r.chain.Pending()),
	})
}

// GET /blocks
func (r *Router) listBlocks(c *gin.Context) {
	blocks, err := r.chain.Blocks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"length": len(blocks), "chain": blocks})
}

// GET /blocks/:height
func (r *Router) getBlock(c *gin.Context) {
	height, err := strconv.Atoi(c.Param("height"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid height"})
		return
	}
	block, err := r.chain.Block(height)
	if err != nil {
		if errors.Is(err, chain.ErrBlockNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Block not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, block)
}

// GET /transactions
func (r *Router) listPending(c *gin.Context) {
	c.JSON(http.StatusOK, r.chain.Pending())
}

// POST /transactions
func (r *Router) submitTransaction(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.chain.SubmitTransaction(req.Sender, req.Receiver, *req.Amount)
	c.JSON(http.StatusCreated, gin.H{"message": "transaction added", "pending": len(r.chain.Pending())})
}

// POST /mine
func (r *Router) mine(c *gin.Context) {
	block, err := r.chain.MineBlock(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, block)
	case errors.Is(err, miner.ErrNonceSpaceExhausted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// PUT /difficulty
func (r *Router) setDifficulty(c *gin.Context) {
	var req DifficultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.chain.SetDifficulty(*req.Difficulty)
	c.JSON(http.StatusOK, gin.H{"difficulty": *req.Difficulty})
}

// PUT /reward
func (r *Router) setReward(c *gin.Context) {
	var req RewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.chain.SetReward(*req.Reward)
	c.JSON(http.StatusOK, gin.H{"reward": *req.Reward})
}
