package demo

// Page is the markup served at /.
const Page = `<!DOCTYPE html>
<html>
<head><title>patchwire demo</title></head>
<body>
<main id="app" data-signals="{count: 0, name: '', now: '', _busy: false}">
  <p>count <span id="count" data-text="$count">0</span></p>
  <button id="inc" data-indicator:_busy data-on:click="@post('/increment')" data-attr:aria-disabled="$_busy">+1</button>
  <button id="reset" data-on:click="@post('/reset')">reset</button>
  <label>name <input id="name" data-bind:name></label>
  <button id="greet" data-on:click="@get('/greet', {filterSignals: {include: '^name$'}})">greet</button>
  <div id="greeting"></div>
  <ul id="log"></ul>
  <p>server time <span id="clock" data-text="$now"></span></p>
</main>
</body>
</html>
`
