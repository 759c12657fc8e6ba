package fixture

const homeTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Server Scanner</title>
</head>
<body>
  <h1>Server Scanner</h1>
  <nav>
    <a href="/settings.html">Configure Settings</a>
  </nav>
</body>
</html>
`

// settingsTemplate renders the stored settings back into the form. The save
// handler posts synchronously so the request has finished before the click
// returns.
const settingsTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Settings</title>
</head>
<body>
  <h1>Settings</h1>
  <div role="tablist">
    <button type="button" role="tab" id="tab-network" aria-controls="panel-network" aria-selected="false">Network</button>
    <button type="button" role="tab" id="tab-security" aria-controls="panel-security" aria-selected="true">Security</button>
  </div>

  <section id="panel-network" role="tabpanel" aria-labelledby="tab-network" hidden>
    <label for="startIp">Start IP</label>
    <input id="startIp" name="startIp" value="{{ scan.startIp }}">
    <label for="endIp">End IP</label>
    <input id="endIp" name="endIp" value="{{ scan.endIp }}">

    <label><input type="checkbox" id="msAuth" name="msAuth"{% if auth.type == "microsoft" %} checked{% endif %}> Microsoft Auth</label>
    <div id="ms-fields">
      <input id="email" name="email" type="email" placeholder="Email" value="{{ auth.email }}">
      <input id="authPassword" name="authPassword" type="password" placeholder="Password (Optional)" value="{{ auth.password }}">
    </div>
  </section>

  <section id="panel-security" role="tabpanel" aria-labelledby="tab-security">
    <p>Proxy and VPN rotation are configured on the server.</p>
  </section>

  <button type="button" id="save">Save Changes</button>

  <script>
  (function () {
    var tabs = Array.prototype.slice.call(document.querySelectorAll('[role="tab"]'));
    function select(tab) {
      tabs.forEach(function (t) {
        var on = t === tab;
        t.setAttribute('aria-selected', on ? 'true' : 'false');
        document.getElementById(t.getAttribute('aria-controls')).hidden = !on;
      });
    }
    tabs.forEach(function (t) {
      t.addEventListener('click', function () { select(t); });
    });

    var msAuth = document.getElementById('msAuth');
    var msFields = document.getElementById('ms-fields');
    function syncAuth() { msFields.hidden = !msAuth.checked; }
    msAuth.addEventListener('change', syncAuth);
    syncAuth();

    function value(id) { return document.getElementById(id).value; }

    document.getElementById('save').addEventListener('click', function () {
      var payload = {
        scan: { startIp: value('startIp'), endIp: value('endIp') },
        auth: {
          type: msAuth.checked ? 'microsoft' : 'offline',
          email: value('email'),
          password: value('authPassword')
        }
      };
      var xhr = new XMLHttpRequest();
      xhr.open('POST', '/api/settings', false);
      xhr.setRequestHeader('Content-Type', 'application/json');
      xhr.send(JSON.stringify(payload));
      alert(xhr.status === 200 ? 'Settings saved' : 'Save failed: ' + xhr.responseText);
    });
  })();
  </script>
</body>
</html>
`
