package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hrygo/kgchat/agents"
	"github.com/hrygo/kgchat/chat"
	"github.com/hrygo/kgchat/store"
)

// runLoop is a minimal presentation layer over the orchestrator: it reads
// lines, invokes the exposed operations and renders store snapshots.
func runLoop(orchestrator *chat.Orchestrator) error {
	scanner := bufio.NewScanner(os.Stdin)
	prompt(orchestrator)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit", line == "/exit":
			return nil
		case line == "/help":
			printHelp()
		case line == "/new":
			orchestrator.CreateConversation()
			printConversations(orchestrator)
		case line == "/list":
			printConversations(orchestrator)
		case line == "/agents":
			for _, a := range agents.List() {
				fmt.Printf("  %-20s %s（%s）\n", a.Value, a.Name, a.Desc)
			}
		case line == "/traces":
			printTraces(orchestrator)
		case line == "/cancel":
			orchestrator.Cancel(orchestrator.Store().ActiveID())
		case strings.HasPrefix(line, "/search "):
			orchestrator.SetSearchQuery(strings.TrimPrefix(line, "/search "))
			printConversations(orchestrator)
		case strings.HasPrefix(line, "/select "):
			orchestrator.SelectConversation(strings.TrimSpace(strings.TrimPrefix(line, "/select ")))
		case strings.HasPrefix(line, "/delete "):
			orchestrator.DeleteConversation(strings.TrimSpace(strings.TrimPrefix(line, "/delete ")))
			printConversations(orchestrator)
		case strings.HasPrefix(line, "/agent "):
			orchestrator.SelectAgent(strings.TrimSpace(strings.TrimPrefix(line, "/agent ")))
		case strings.HasPrefix(line, "/rename "):
			rest := strings.TrimPrefix(line, "/rename ")
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) == 2 {
				orchestrator.StartEdit(parts[0])
				orchestrator.SetEditTitle(parts[1])
				orchestrator.FinishEdit()
			}
		case strings.HasPrefix(line, "/"):
			fmt.Println(`unknown command, try "/help"`)
		default:
			sendAndStream(orchestrator, line)
		}
		prompt(orchestrator)
	}
	return scanner.Err()
}

// sendAndStream issues one turn and prints the live preview as it grows.
func sendAndStream(orchestrator *chat.Orchestrator, text string) {
	conversationID := orchestrator.Store().ActiveID()
	if conversationID == "" {
		fmt.Println("no active conversation; use /new first")
		return
	}

	orchestrator.SetInput(text)
	orchestrator.Send()

	printed := 0
	for orchestrator.IsBusy(conversationID) {
		_, preview := orchestrator.State(conversationID)
		if len(preview) > printed {
			fmt.Print(preview[printed:])
			printed = len(preview)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// The final flush may land between the last poll and idle; print the
	// remainder from the committed message.
	if conversation, ok := orchestrator.Store().Get(conversationID); ok && len(conversation.Messages) > 0 {
		last := conversation.Messages[len(conversation.Messages)-1]
		if last.Role == store.RoleAssistant && len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
		}
	}
	fmt.Println()
}

func prompt(orchestrator *chat.Orchestrator) {
	title := "(無對話)"
	if conversation, ok := orchestrator.Store().ActiveConversation(); ok {
		title = conversation.Title
	}
	fmt.Printf("[%s | %s] > ", title, agents.DisplayName(orchestrator.Agent()))
}

func printConversations(orchestrator *chat.Orchestrator) {
	activeID := orchestrator.Store().ActiveID()
	for _, conversation := range orchestrator.FilteredConversations() {
		marker := " "
		if conversation.ID == activeID {
			marker = "*"
		}
		fmt.Printf("%s %s  %s（%d 則訊息）\n", marker, conversation.ID, conversation.Title, len(conversation.Messages))
	}
}

func printTraces(orchestrator *chat.Orchestrator) {
	conversation, ok := orchestrator.Store().ActiveConversation()
	if !ok {
		return
	}
	for _, trace := range conversation.Traces {
		retrieval := "文件檢索"
		if trace.UsedKnowledgeGraph {
			retrieval = "知識圖譜"
		}
		fmt.Printf("%s [%s/%s] %s\n", trace.Time, agents.DisplayName(trace.Agent), retrieval, trace.InputText)
		for i, step := range trace.Steps {
			fmt.Printf("    %d. %s\n", i+1, step)
		}
	}
}

func printHelp() {
	fmt.Print(`  /new                建立新對話
  /list               列出對話
  /search <關鍵字>    以標題搜尋對話
  /select <id>        切換對話
  /rename <id> <標題> 重新命名對話
  /delete <id>        刪除對話
  /agent <value>      選擇代理
  /agents             列出可用代理
  /traces             顯示執行軌跡
  /cancel             取消進行中的回覆
  /quit               離開
`)
}
