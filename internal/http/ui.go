package http

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"
)

func dashboardPageHandler(c *gin.Context) {
	c.Data(nethttp.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

func faviconHandler(c *gin.Context) {
	c.Status(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Reconciliation Dashboard</title>
  <style>
    :root {
      --blue: #0e5d8f;
      --bg: #f7f7f7;
      --paper: #fff;
      --text: #333;
      --muted: #777;
      --line: #ddd;
      --ok-bg: #dff0d8;
      --ok-text: #3c763d;
      --warn-bg: #fcf8e3;
      --warn-text: #8a6d3b;
      --bad-bg: #f2dede;
      --bad-text: #a94442;
    }
    * { box-sizing: border-box; }
    body { margin: 0; background: var(--bg); color: var(--text); font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; }
    header { background: var(--blue); color: #fff; padding: 12px 20px; display: flex; justify-content: space-between; align-items: center; }
    main { padding: 16px 20px; }
    .kpis { display: grid; grid-template-columns: repeat(4, 1fr); gap: 12px; margin-bottom: 16px; }
    .kpi { background: var(--paper); border: 1px solid var(--line); padding: 12px; }
    .kpi .v { font-size: 22px; font-weight: 600; }
    .kpi .l { color: var(--muted); font-size: 12px; }
    table { width: 100%; border-collapse: collapse; background: var(--paper); }
    th, td { border-bottom: 1px solid var(--line); padding: 6px 8px; text-align: left; }
    tr.row { cursor: pointer; }
    tr.row:hover { background: #f0f6fa; }
    .badge { padding: 2px 6px; border-radius: 3px; font-size: 12px; }
    .success { background: var(--ok-bg); color: var(--ok-text); }
    .failed-resolved { background: var(--ok-bg); color: var(--ok-text); }
    .failed-investigating { background: var(--warn-bg); color: var(--warn-text); }
    .failed-unresolved { background: var(--bad-bg); color: var(--bad-text); }
    .error { background: var(--bad-bg); color: var(--bad-text); padding: 8px; margin-bottom: 12px; }
    .hidden { display: none; }
    .toolbar { display: flex; gap: 8px; margin-bottom: 12px; }
    #panel { background: var(--paper); border: 1px solid var(--line); padding: 12px; margin-top: 16px; }
  </style>
</head>
<body>
  <header>
    <strong>Reconciliation Dashboard</strong>
    <span><span id="sync"></span> <button id="refresh">Refresh</button> <button id="logout">Log out</button></span>
  </header>
  <main>
    <div id="login" class="hidden">
      <p>Paste an access token to continue.</p>
      <input id="token" size="60" /> <button id="login-btn">Log in</button>
    </div>
    <div id="err" class="error hidden"></div>
    <div id="list">
      <div class="kpis">
        <div class="kpi"><div class="v" id="k-cov">-</div><div class="l">Coverage</div></div>
        <div class="kpi"><div class="v" id="k-open">-</div><div class="l">Open exceptions</div></div>
        <div class="kpi"><div class="v" id="k-avg">-</div><div class="l">Avg. time to resolve (h)</div></div>
        <div class="kpi"><div class="v" id="k-cash">-</div><div class="l">Cash at risk</div></div>
      </div>
      <div class="toolbar">
        <input id="q" placeholder="Search tests" />
        <select id="status"><option value="all">All statuses</option></select>
        <select id="category"><option value="all">All categories</option></select>
      </div>
      <table>
        <thead><tr><th>Test</th><th>Category</th><th>Status</th><th>Last run</th><th>Days failing</th><th>Delta</th><th>Owner</th></tr></thead>
        <tbody id="rows"></tbody>
      </table>
    </div>
    <div id="panel" class="hidden">
      <button id="back">Back to list</button>
      <h3 id="p-title"></h3>
      <label>Status <select id="f-status"></select></label>
      <label>Root cause <select id="f-cause"></select></label>
      <div><textarea id="f-notes" rows="3" cols="80" placeholder="Resolution notes"></textarea></div>
      <button id="save">Save</button> <button id="export">Export mismatches CSV</button>
      <h4>Evidence</h4>
      <table><thead><tr><th>Id</th><th>Date</th><th>Description</th><th>Amount</th><th>Reference</th><th>Matched</th></tr></thead><tbody id="evidence"></tbody></table>
      <h4>Audit trail</h4>
      <ul id="audit"></ul>
    </div>
  </main>
  <script>
    const $ = (id) => document.getElementById(id);
    let settings = null;

    async function api(method, path, body) {
      const res = await fetch(path, { method, headers: { "Content-Type": "application/json" }, body: body ? JSON.stringify(body) : undefined });
      if (res.status === 401) { showLogin(true); throw new Error("not authenticated"); }
      const data = res.headers.get("Content-Type")?.includes("json") ? await res.json() : null;
      if (!res.ok) throw new Error((data && data.error) || ("HTTP " + res.status));
      return data;
    }

    function showError(msg) { $("err").textContent = msg || ""; $("err").classList.toggle("hidden", !msg); }
    function showLogin(on) { $("login").classList.toggle("hidden", !on); }
    function esc(v) { return String(v ?? "").replace(/[&<>"]/g, (c) => ({ "&": "&amp;", "<": "&lt;", ">": "&gt;", '"': "&quot;" }[c])); }

    function fillOptions(select, options, keep) {
      select.innerHTML = keep ? select.options[0].outerHTML : "";
      for (const o of options) select.insertAdjacentHTML("beforeend", "<option value=\"" + esc(o.value) + "\">" + esc(o.label) + "</option>");
    }

    function renderDashboard(d) {
      showError(d.error);
      $("sync").textContent = d.lastSyncedAt ? "Synced " + new Date(d.lastSyncedAt).toLocaleTimeString() : d.state;
      $("k-cov").textContent = d.kpis.coverageRate + "%";
      $("k-open").textContent = d.kpis.openExceptions;
      $("k-avg").textContent = d.kpis.avgResolutionHours ?? "-";
      $("k-cash").textContent = "$" + Number(d.kpis.cashAtRisk).toLocaleString();
      loadTests();
    }

    async function loadTests() {
      const params = new URLSearchParams({ q: $("q").value, status: $("status").value, category: $("category").value });
      const res = await api("GET", "/api/v1/tests?" + params);
      $("rows").innerHTML = res.data.map((t) =>
        "<tr class=\"row\" data-id=\"" + esc(t.id) + "\"><td>" + esc(t.name) + (t.inProgress ? " (running)" : "") + "</td><td>" + esc(t.category) +
        "</td><td><span class=\"badge " + esc(t.status) + "\">" + esc(t.statusLabel) + "</span></td><td>" + esc(t.lastRunAgo) +
        "</td><td>" + t.daysFailing + "</td><td>" + esc(t.deltaDisplay) + "</td><td>" + esc(t.owner) + "</td></tr>").join("");
    }

    function renderInvestigation(wb) {
      $("list").classList.add("hidden");
      $("panel").classList.remove("hidden");
      $("p-title").textContent = wb.test.name;
      $("f-status").value = wb.form.status;
      $("f-cause").value = wb.form.rootCause;
      $("f-notes").value = wb.form.notes || "";
      $("evidence").innerHTML = wb.evidence.records.map((r) =>
        "<tr><td>" + esc(r.id) + "</td><td>" + esc(r.date) + "</td><td>" + esc(r.description) + "</td><td>" + esc(r.amount) +
        "</td><td>" + esc(r.reference) + "</td><td>" + (r.matched ? "yes" : "no") + "</td></tr>").join("");
      $("audit").innerHTML = wb.auditTrail.map((e) => "<li>" + esc(e.timestamp) + " " + esc(e.user) + ": " + esc(e.action) + (e.details ? " (" + esc(e.details) + ")" : "") + "</li>").join("");
      showError(wb.error);
    }

    $("rows").addEventListener("click", async (ev) => {
      const tr = ev.target.closest("tr.row");
      if (!tr) return;
      try { renderInvestigation(await api("POST", "/api/v1/tests/" + encodeURIComponent(tr.dataset.id) + "/investigation")); }
      catch (e) { showError(e.message); }
    });
    $("back").onclick = async () => {
      $("panel").classList.add("hidden");
      $("list").classList.remove("hidden");
      renderDashboard(await api("DELETE", "/api/v1/investigation"));
    };
    $("save").onclick = async () => {
      try { renderInvestigation(await api("PATCH", "/api/v1/investigation", { status: $("f-status").value, rootCause: $("f-cause").value, notes: $("f-notes").value })); }
      catch (e) { showError(e.message); }
    };
    $("export").onclick = () => { window.location = "/api/v1/investigation/mismatches.csv"; };
    $("refresh").onclick = async () => { try { renderDashboard(await api("POST", "/api/v1/refresh")); } catch (e) { showError(e.message); } };
    $("logout").onclick = async () => { await api("POST", "/api/v1/auth/logout"); showLogin(true); };
    $("login-btn").onclick = async () => {
      try { await api("POST", "/api/v1/auth/login", { token: $("token").value }); showLogin(false); start(); }
      catch (e) { showError(e.message); }
    };
    for (const id of ["q", "status", "category"]) $(id).addEventListener("input", () => loadTests().catch((e) => showError(e.message)));

    function connect() {
      const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
      ws.onmessage = (msg) => {
        const ev = JSON.parse(msg.data);
        if (ev.type === "snapshot" && !$("list").classList.contains("hidden")) renderDashboard(ev.data);
      };
      ws.onclose = () => setTimeout(connect, 5000);
    }

    async function start() {
      settings = (await api("GET", "/api/v1/settings")).data;
      fillOptions($("status"), settings.statuses, true);
      fillOptions($("category"), settings.categories.map((c) => ({ value: c, label: c })), true);
      fillOptions($("f-status"), settings.statuses, false);
      fillOptions($("f-cause"), settings.root_causes, false);
      renderDashboard(await api("GET", "/api/v1/dashboard"));
      connect();
    }

    api("GET", "/api/v1/auth/session").then((s) => {
      if (s.authenticated || s.authDisabled) start().catch((e) => showError(e.message));
      else showLogin(true);
    });
  </script>
</body>
</html>
`
