package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fortiblox/stratus-builtins/pkg/accounts"
	"github.com/fortiblox/stratus-builtins/pkg/receipts"
	"github.com/fortiblox/stratus-builtins/pkg/vm"
	"github.com/olekukonko/tablewriter"
)

type logView struct {
	Sequence uint64   `json:"sequence,omitempty"`
	Address  string   `json:"address"`
	Endpoint string   `json:"endpoint"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data,omitempty"`
}

type resultView struct {
	Sequence   uint64    `json:"sequence,omitempty"`
	TxHash     string    `json:"txHash,omitempty"`
	Status     uint8     `json:"status"`
	StatusText string    `json:"statusText"`
	Message    string    `json:"message,omitempty"`
	GasUsed    uint64    `json:"gasUsed"`
	Logs       []logView `json:"logs,omitempty"`
	ReturnData []string  `json:"returnData,omitempty"`
}

func newLogViews(logs []vm.TxLog) []logView {
	views := make([]logView, 0, len(logs))
	for _, l := range logs {
		v := logView{
			Address:  l.Address.String(),
			Endpoint: l.Endpoint,
			Topics:   make([]string, 0, len(l.Topics)),
		}
		for _, t := range l.Topics {
			v.Topics = append(v.Topics, formatBytes(t))
		}
		if len(l.Data) > 0 {
			v.Data = formatBytes(l.Data)
		}
		views = append(views, v)
	}
	return views
}

func newResultView(result *vm.TxResult) resultView {
	v := resultView{
		Status:     uint8(result.Status),
		StatusText: result.Status.String(),
		Message:    result.Message,
		GasUsed:    result.GasUsed,
		Logs:       newLogViews(result.Logs),
	}
	for _, d := range result.ReturnData {
		v.ReturnData = append(v.ReturnData, formatBytes(d))
	}
	return v
}

func newReceiptView(r *receipts.Receipt) resultView {
	v := newResultView(&vm.TxResult{
		Status:     r.Status,
		Message:    r.Message,
		Logs:       r.Logs,
		ReturnData: r.ReturnData,
		GasUsed:    r.GasUsed,
	})
	v.Sequence = r.Sequence
	v.TxHash = r.TxHash.Hex()
	return v
}

// formatBytes renders printable values as "str:..." and everything else in
// hex, the notation accepted by --arg.
func formatBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) && strings.IndexFunc(string(b), func(r rune) bool {
		return r < 0x20 || r == 0x7f
	}) < 0 {
		return "str:" + string(b)
	}
	return "0x" + hex.EncodeToString(b)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeResult(w io.Writer, v resultView) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	if v.TxHash != "" {
		table.Append([]string{"sequence", strconv.FormatUint(v.Sequence, 10)})
		table.Append([]string{"tx hash", v.TxHash})
	}
	table.Append([]string{"status", fmt.Sprintf("%d (%s)", v.Status, v.StatusText)})
	if v.Message != "" {
		table.Append([]string{"message", v.Message})
	}
	table.Append([]string{"gas used", strconv.FormatUint(v.GasUsed, 10)})
	for i, d := range v.ReturnData {
		table.Append([]string{fmt.Sprintf("out[%d]", i), d})
	}
	table.Render()

	if len(v.Logs) > 0 {
		writeLogs(w, v.Logs)
	}
}

func writeLogs(w io.Writer, logs []logView) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"#", "Address", "Endpoint", "Topics", "Data"})
	for i, l := range logs {
		table.Append([]string{
			strconv.Itoa(i),
			l.Address,
			l.Endpoint,
			strings.Join(l.Topics, " | "),
			l.Data,
		})
	}
	table.Render()
}

func writeAccount(w io.Writer, acc *accounts.Account) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.Append([]string{"address", acc.Address.String()})
	table.Append([]string{"nonce", strconv.FormatUint(acc.Nonce, 10)})
	table.Append([]string{"balance", acc.Balance.String()})
	if len(acc.Username) > 0 {
		table.Append([]string{"username", string(acc.Username)})
	}
	if acc.IsContract() {
		table.Append([]string{"code size", strconv.Itoa(len(acc.Code))})
		table.Append([]string{"owner", acc.Owner.String()})
		table.Append([]string{"developer rewards", acc.DeveloperRewards.String()})
	}
	table.Append([]string{"storage keys", strconv.Itoa(len(acc.Storage))})
	table.Render()

	tokens := acc.SortedTokens()
	if len(tokens) == 0 {
		return
	}
	table = tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Token", "Nonce", "Balance", "Name", "Royalties", "URIs", "Roles"})
	for _, token := range tokens {
		data := acc.DCDT[token]
		roles := strings.Join(data.SortedRoles(), ",")
		nonces := data.SortedNonces()
		if len(nonces) == 0 {
			table.Append([]string{token, "", "", "", "", "", roles})
			continue
		}
		for _, nonce := range nonces {
			inst := data.Instances[nonce]
			uris := make([]string, 0, len(inst.URIs))
			for _, u := range inst.URIs {
				uris = append(uris, string(u))
			}
			table.Append([]string{
				token,
				strconv.FormatUint(nonce, 10),
				inst.Balance.String(),
				string(inst.Name),
				strconv.FormatUint(inst.Royalties, 10),
				strings.Join(uris, " "),
				roles,
			})
		}
	}
	table.Render()
}
