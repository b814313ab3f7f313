package webclient

// probeScript reports pairing and loading state of the page.
const probeScript = `() => {
  const qr = document.querySelector('div[data-ref]');
  return {
    qr: qr ? qr.getAttribute('data-ref') || '' : '',
    loading: !!document.querySelector('progress, [data-testid="intro-md-beta-logo-dark"]'),
    ready: !!document.querySelector('#pane-side'),
  };
}`

// chatsScript lists the rows of the chat pane.
const chatsScript = `() => {
  const rows = document.querySelectorAll('#pane-side [role="listitem"], #pane-side [role="row"]');
  const seen = new Set();
  const out = [];
  for (const row of rows) {
    const title = row.querySelector('span[title]');
    if (!title) continue;
    const name = title.getAttribute('title');
    if (!name || seen.has(name)) continue;
    seen.add(name);
    const badge = row.querySelector('span[aria-label*="unread" i]');
    const unread = badge ? parseInt(badge.textContent, 10) || 1 : 0;
    const group = !!row.querySelector('[data-icon="default-group"], [data-icon="group"]');
    out.push({ name, unread, group });
  }
  return out;
}`

// openChatScript selects the chat row whose title equals the argument.
const openChatScript = `(name) => {
  for (const title of document.querySelectorAll('#pane-side span[title]')) {
    if (title.getAttribute('title') === name) {
      const row = title.closest('[role="listitem"], [role="row"]') || title;
      const target = row.querySelector('[tabindex]') || row;
      target.dispatchEvent(new MouseEvent('mousedown', { bubbles: true }));
      target.click();
      return true;
    }
  }
  return false;
}`

// observerScript pushes incoming messages to the exposed binding. It
// watches the open conversation and unread previews in the chat pane.
const observerScript = `() => {
  if (window.__fteObserver) return;
  const push = (payload) => window.` + bindingName + `(payload);

  const header = () => {
    const t = document.querySelector('#main header span[title]');
    return t ? t.getAttribute('title') : '';
  };

  const fromBubble = (node) => {
    const copy = node.querySelector('.copyable-text[data-pre-plain-text]');
    const text = node.querySelector('span.selectable-text');
    if (!copy || !text) return;
    const meta = copy.getAttribute('data-pre-plain-text') || '';
    const match = meta.match(/^\[[^\]]*\]\s*(.*?):\s*$/);
    const author = match ? match[1] : '';
    const chat = header();
    const group = !!document.querySelector('#main header [data-icon="default-group"]');
    push({ author: author, chat: chat, body: text.innerText, group: group, ts: Date.now() });
  };

  const main = new MutationObserver((records) => {
    for (const r of records) {
      for (const n of r.addedNodes) {
        if (!(n instanceof HTMLElement)) continue;
        if (n.matches('.message-in') || n.querySelector('.message-in')) {
          fromBubble(n.matches('.message-in') ? n : n.querySelector('.message-in'));
        }
      }
    }
  });

  const previews = new Map();
  const pane = new MutationObserver(() => {
    for (const row of document.querySelectorAll('#pane-side [role="listitem"], #pane-side [role="row"]')) {
      const title = row.querySelector('span[title]');
      const badge = row.querySelector('span[aria-label*="unread" i]');
      if (!title || !badge) continue;
      const name = title.getAttribute('title');
      if (name === header()) continue;
      const preview = row.querySelectorAll('span[title]');
      const body = preview.length > 1 ? preview[preview.length - 1].getAttribute('title') : '';
      if (!body || previews.get(name) === body) continue;
      previews.set(name, body);
      const group = !!row.querySelector('[data-icon="default-group"], [data-icon="group"]');
      push({ pushName: name, chat: name, body: body, group: group, ts: Date.now() });
    }
  });

  const attach = () => {
    const m = document.querySelector('#main');
    if (m && !m.__fteObserved) {
      m.__fteObserved = true;
      main.observe(m, { childList: true, subtree: true });
    }
  };
  pane.observe(document.querySelector('#pane-side'), { childList: true, subtree: true, characterData: true });
  new MutationObserver(attach).observe(document.body, { childList: true, subtree: true });
  attach();
  window.__fteObserver = true;
}`
