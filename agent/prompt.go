package agent

import (
	"fmt"
	"strings"

	"github.com/chao-dotcom/RAGh-Tutor/llm"
	"github.com/chao-dotcom/RAGh-Tutor/memory"
	"github.com/chao-dotcom/RAGh-Tutor/rag"
)

// DefaultSystemPrompt instructs the model to ground answers in retrieved
// context and cite chunk ids in square brackets.
const DefaultSystemPrompt = `You are a helpful AI assistant with access to a knowledge base.
Your task is to answer questions based on the provided context.

Guidelines:
- Always cite your sources using the chunk IDs provided
- If the context doesn't contain enough information, say so
- Be concise but thorough
- If you're uncertain, acknowledge it
- Format citations as [chunk_id]`

const agentSystemPrompt = "You are a helpful agent. Use tools when needed to answer queries accurately."

// buildRAGPrompt assembles the grounded prompt for the simple RAG path:
// recent history, the retrieved chunks labelled by chunk id, then the
// question. Only the last five history messages are included.
func buildRAGPrompt(query string, chunks []rag.ScoredChunk, history []memory.Message) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("## Conversation History\n")
		start := 0
		if len(history) > 5 {
			start = len(history) - 5
		}
		for _, msg := range history[start:] {
			role := msg.Role
			if role != "" {
				role = strings.ToUpper(role[:1]) + role[1:]
			}
			fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Context\n")
	for _, sc := range chunks {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", sc.Chunk.ID, sc.Chunk.Content)
	}

	b.WriteString("## Question\n")
	b.WriteString(query)
	b.WriteString("\n\n## Answer\nBased on the context above, here is my answer:")
	return b.String()
}

// buildAgentPrompt assembles the tool-iteration prompt: available tool
// descriptions, accumulated context (initial retrieval plus tool results
// so far), then the query.
func buildAgentPrompt(query string, schemas []llm.ToolSchema, context string) string {
	var b strings.Builder

	b.WriteString("You are an AI agent with access to tools. Analyze the query and determine if you need to use any tools.\n\n")
	b.WriteString("## Available Tools\n")
	for _, schema := range schemas {
		fmt.Fprintf(&b, "- %s: %s\n", schema.Name, schema.Description)
	}

	if context != "" {
		b.WriteString("\n## Context\n")
		b.WriteString(context)
		b.WriteString("\n")
	}

	b.WriteString("\n## Query\n")
	b.WriteString(query)
	b.WriteString("\n\n## Instructions\n")
	b.WriteString("1. Analyze if the query can be answered with available knowledge\n")
	b.WriteString("2. If tools are needed, decide which tool(s) to use\n")
	b.WriteString("3. Plan your approach step by step\n")
	b.WriteString("4. Execute the plan and provide a comprehensive answer")
	return b.String()
}
